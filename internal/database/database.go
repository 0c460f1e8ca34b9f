package database

import (
	"context"
	"fmt"

	"github.com/mgmu/hortus/internal/config"
	"github.com/mgmu/hortus/internal/plants"
	"go.uber.org/zap"
)

// Database defines the API to store and retrieve plants and their harvests
// from a document store.
//
// Identifiers are passed as plants.ID and parsed by the implementation; a
// malformed one yields an *Error of kind KindInvalidIdentifier. Single-record
// lookups that match nothing yield KindNotFound.
type Database interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	GetPlants(ctx context.Context) ([]plants.Plant, error)
	GetPlant(ctx context.Context, id plants.ID) (plants.Plant, error)
	AddNewPlant(ctx context.Context, p plants.Plant) (plants.ID, error)
	// UpdatePlant overwrites name, variety, photo and date planted.
	UpdatePlant(ctx context.Context, id plants.ID, p plants.Plant) error
	// DeletePlant deletes the plant and every harvest logged against it.
	DeletePlant(ctx context.Context, id plants.ID) error

	GetHarvests(ctx context.Context, plantId plants.ID) ([]plants.Harvest, error)
	// AddNewHarvest inserts h for the plant h.PlantId, which must exist.
	AddNewHarvest(ctx context.Context, h plants.Harvest) (plants.ID, error)
	// DeleteOrphanHarvests removes harvests whose plant no longer exists and
	// returns how many were removed.
	DeleteOrphanHarvests(ctx context.Context) (int64, error)
}

// Open returns the Database selected by cfg.Store.Driver. The returned value
// is not connected yet.
func Open(cfg *config.Config, log *zap.Logger) (Database, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		return NewMongoDatabase(cfg.Mongo, log), nil
	case config.DriverPostgres:
		return NewPostgresDatabase(cfg.Postgres), nil
	case config.DriverBolt:
		return NewBoltDatabase(cfg.Bolt.Path), nil
	default:
		return nil, fmt.Errorf("database: unknown driver %q", cfg.Store.Driver)
	}
}
