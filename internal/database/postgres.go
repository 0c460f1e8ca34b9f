package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mgmu/hortus/internal/config"
	"github.com/mgmu/hortus/internal/plants"
)

//go:embed postgres_schema.sql
var schemaSQL string

type PostgresDatabase struct {
	cfg  config.PostgresConfig
	pool *pgxpool.Pool
}

type plantRow struct {
	Id          string
	Name        string
	Variety     string
	Photo       string
	DatePlanted string
}

type harvestRow struct {
	Id       string
	PlantId  string
	Quantity string
	Date     string
}

func NewPostgresDatabase(cfg config.PostgresConfig) *PostgresDatabase {
	return &PostgresDatabase{cfg: cfg}
}

// Connect attempts to connect to the Postgres database and to set the
// appropriate schema for future queries. The schema is created first if the
// configuration asks for it, otherwise the tables must already exist.
func (db *PostgresDatabase) Connect(ctx context.Context) error {
	if db.cfg.URL == "" {
		return unavailable("Connect", errors.New("database URL not set"))
	}
	poolCfg, err := pgxpool.ParseConfig(db.cfg.URL)
	if err != nil {
		return unavailable("Connect", err)
	}
	// Every connection of the pool resolves tables in our schema
	poolCfg.ConnConfig.RuntimeParams["search_path"] = "hortus_schema"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return unavailable("Connect", err)
	}

	if db.cfg.CreateSchema {
		if _, err := pool.Exec(ctx, schemaSQL); err != nil {
			pool.Close()
			return unavailable("Connect", fmt.Errorf("creating schema: %w", err))
		}
	}

	query := `
SELECT count(*) = 2 FROM pg_tables
WHERE schemaname = 'hortus_schema'
AND (tablename = 'plant' OR tablename = 'harvest');`
	var exist bool
	if err := pool.QueryRow(ctx, query).Scan(&exist); err != nil {
		pool.Close()
		return unavailable("Connect", err)
	}
	if !exist {
		pool.Close()
		return unavailable("Connect", errors.New("schema and tables not found"))
	}

	db.pool = pool
	return nil
}

// Close closes all connections to this connection pool. Always returns a nil
// error.
func (db *PostgresDatabase) Close(context.Context) error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

func (db *PostgresDatabase) Ping(ctx context.Context) error {
	if db.pool == nil {
		return unavailable("Ping", errors.New("not connected"))
	}
	if err := db.pool.Ping(ctx); err != nil {
		return unavailable("Ping", err)
	}
	return nil
}

// GetPlants queries the database for all plants, oldest first.
func (db *PostgresDatabase) GetPlants(ctx context.Context) ([]plants.Plant, error) {
	rows, _ := db.pool.Query(ctx,
		"SELECT id::text, name, variety, photo, date_planted FROM plant ORDER BY created_at, id;")
	ps, err := pgx.CollectRows(rows, pgx.RowToStructByPos[plantRow])
	if err != nil {
		return nil, unavailable("GetPlants", err)
	}
	out := make([]plants.Plant, len(ps))
	for i, p := range ps {
		out[i] = p.toPlant()
	}
	return out, nil
}

// GetPlant queries the database for the plant of given id.
func (db *PostgresDatabase) GetPlant(ctx context.Context, id plants.ID) (plants.Plant, error) {
	uid, err := parseUUID("GetPlant", id)
	if err != nil {
		return plants.Plant{}, err
	}
	rows, _ := db.pool.Query(ctx,
		"SELECT id::text, name, variety, photo, date_planted FROM plant WHERE id=$1;", uid)
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[plantRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return plants.Plant{}, notFound("GetPlant", err)
	}
	if err != nil {
		return plants.Plant{}, unavailable("GetPlant", err)
	}
	return p.toPlant(), nil
}

// AddNewPlant inserts a new entry in the 'plant' table. On success, returns
// the identifier of the inserted entry.
func (db *PostgresDatabase) AddNewPlant(ctx context.Context, p plants.Plant) (plants.ID, error) {
	row := db.pool.QueryRow(ctx, `
INSERT INTO plant (name, variety, photo, date_planted)
VALUES ($1, $2, $3, $4)
RETURNING id::text;`,
		p.Name,
		p.Variety,
		p.Photo,
		p.DatePlanted,
	)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", unavailable("AddNewPlant", err)
	}
	return plants.ID(id), nil
}

func (db *PostgresDatabase) UpdatePlant(ctx context.Context, id plants.ID, p plants.Plant) error {
	uid, err := parseUUID("UpdatePlant", id)
	if err != nil {
		return err
	}
	tag, err := db.pool.Exec(ctx, `
UPDATE plant SET name=$2, variety=$3, photo=$4, date_planted=$5
WHERE id=$1;`,
		uid,
		p.Name,
		p.Variety,
		p.Photo,
		p.DatePlanted,
	)
	if err != nil {
		return unavailable("UpdatePlant", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("UpdatePlant", nil)
	}
	return nil
}

// DeletePlant removes the plant and its harvests in a single transaction.
func (db *PostgresDatabase) DeletePlant(ctx context.Context, id plants.ID) error {
	uid, err := parseUUID("DeletePlant", id)
	if err != nil {
		return err
	}
	err = pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM harvest WHERE plant_id=$1;", uid.String()); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "DELETE FROM plant WHERE id=$1;", uid)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("DeletePlant", nil)
	}
	if err != nil {
		return unavailable("DeletePlant", err)
	}
	return nil
}

// GetHarvests queries the database for all the harvests of the plant of given
// identifier.
func (db *PostgresDatabase) GetHarvests(ctx context.Context, plantId plants.ID) ([]plants.Harvest, error) {
	uid, err := parseUUID("GetHarvests", plantId)
	if err != nil {
		return nil, err
	}
	rows, _ := db.pool.Query(ctx, `
SELECT id::text, plant_id, quantity, date FROM harvest
WHERE plant_id=$1 ORDER BY created_at, id;`,
		uid.String(),
	)
	hs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[harvestRow])
	if err != nil {
		return nil, unavailable("GetHarvests", err)
	}
	out := make([]plants.Harvest, len(hs))
	for i, h := range hs {
		out[i] = h.toHarvest()
	}
	return out, nil
}

// AddNewHarvest inserts a harvest for an existing plant. The existence check
// and the insert are a single statement.
func (db *PostgresDatabase) AddNewHarvest(ctx context.Context, h plants.Harvest) (plants.ID, error) {
	uid, err := parseUUID("AddNewHarvest", h.PlantId)
	if err != nil {
		return "", err
	}
	row := db.pool.QueryRow(ctx, `
INSERT INTO harvest (plant_id, quantity, date)
SELECT $1::uuid::text, $2, $3
WHERE EXISTS (SELECT 1 FROM plant WHERE id=$1)
RETURNING id::text;`,
		uid,
		h.Quantity,
		h.Date,
	)
	var id string
	err = row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("AddNewHarvest", fmt.Errorf("plant %s", h.PlantId))
	}
	if err != nil {
		return "", unavailable("AddNewHarvest", err)
	}
	return plants.ID(id), nil
}

func (db *PostgresDatabase) DeleteOrphanHarvests(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `
DELETE FROM harvest h
WHERE NOT EXISTS (SELECT 1 FROM plant p WHERE p.id::text = h.plant_id);`)
	if err != nil {
		return 0, unavailable("DeleteOrphanHarvests", err)
	}
	return tag.RowsAffected(), nil
}

func parseUUID(op string, id plants.ID) (uuid.UUID, error) {
	uid, err := uuid.Parse(id.String())
	if err != nil {
		return uuid.Nil, invalidID(op, id.String(), err)
	}
	return uid, nil
}

func (r plantRow) toPlant() plants.Plant {
	return plants.Plant{
		Id:          plants.ID(r.Id),
		Name:        r.Name,
		Variety:     r.Variety,
		Photo:       r.Photo,
		DatePlanted: r.DatePlanted,
	}
}

func (r harvestRow) toHarvest() plants.Harvest {
	return plants.Harvest{
		Id:       plants.ID(r.Id),
		PlantId:  plants.ID(r.PlantId),
		Quantity: r.Quantity,
		Date:     r.Date,
	}
}
