// Package records implements the plant and harvest operations offered by the
// web front end on top of a database.Database.
package records

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mgmu/hortus/internal/database"
	"github.com/mgmu/hortus/internal/plants"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Detail is a plant together with the harvests logged against it.
type Detail struct {
	Plant    plants.Plant
	Harvests []plants.Harvest
}

// Service translates record operations into database calls. Every error it
// returns carries a database.Kind, see database.KindOf.
type Service struct {
	db      database.Database
	log     *zap.Logger
	timeout time.Duration
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithTimeout bounds each operation. Zero means no deadline besides the
// caller's.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func NewService(db database.Database, opts ...Option) *Service {
	s := &Service{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) ListPlants(ctx context.Context) ([]plants.Plant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.GetPlants(ctx)
}

// CreatePlant stores p, ignoring p.Id, and returns the new identifier.
func (s *Service) CreatePlant(ctx context.Context, p plants.Plant) (plants.ID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	id, err := s.db.AddNewPlant(ctx, p)
	if err != nil {
		return "", err
	}
	s.log.Debug("Plant created", zap.String("plant_id", id.String()))
	return id, nil
}

func (s *Service) GetPlant(ctx context.Context, rawID string) (plants.Plant, error) {
	id, err := parseID("GetPlant", rawID)
	if err != nil {
		return plants.Plant{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.GetPlant(ctx, id)
}

// GetPlantDetail fetches the plant and its harvests concurrently. An unknown
// plant is an error even if stray harvests reference it.
func (s *Service) GetPlantDetail(ctx context.Context, rawID string) (Detail, error) {
	id, err := parseID("GetPlantDetail", rawID)
	if err != nil {
		return Detail{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var d Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.db.GetPlant(gctx, id)
		d.Plant = p
		return err
	})
	g.Go(func() error {
		hs, err := s.db.GetHarvests(gctx, id)
		d.Harvests = hs
		return err
	})
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return d, nil
}

// LogHarvest records a harvest for the plant rawID. h.PlantId is ignored.
func (s *Service) LogHarvest(ctx context.Context, rawID string, h plants.Harvest) (plants.ID, error) {
	id, err := parseID("LogHarvest", rawID)
	if err != nil {
		return "", err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	h.PlantId = id
	return s.db.AddNewHarvest(ctx, h)
}

// UpdatePlant overwrites every editable field of the plant rawID with those
// of p, empty ones included.
func (s *Service) UpdatePlant(ctx context.Context, rawID string, p plants.Plant) error {
	id, err := parseID("UpdatePlant", rawID)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.UpdatePlant(ctx, id, p)
}

// DeletePlant deletes the plant rawID and its harvests.
func (s *Service) DeletePlant(ctx context.Context, rawID string) error {
	id, err := parseID("DeletePlant", rawID)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.DeletePlant(ctx, id); err != nil {
		return err
	}
	s.log.Debug("Plant deleted", zap.String("plant_id", id.String()))
	return nil
}

// PruneOrphans deletes harvests whose plant no longer exists. It is not
// bounded by the service timeout.
func (s *Service) PruneOrphans(ctx context.Context) (int64, error) {
	return s.db.DeleteOrphanHarvests(ctx)
}

// Ping checks the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.Ping(ctx)
}

func parseID(op, raw string) (plants.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &database.Error{
			Kind: database.KindInvalidIdentifier,
			Op:   op,
			Err:  errors.New("empty identifier"),
		}
	}
	return plants.ID(raw), nil
}
