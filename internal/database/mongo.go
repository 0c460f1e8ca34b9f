package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mgmu/hortus/internal/config"
	"github.com/mgmu/hortus/internal/plants"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

const (
	plantsCollection   = "plants"
	harvestsCollection = "harvests"

	// harvest deletions are retried this many times before giving up
	maxDeleteRetries = 3
)

type plantDocument struct {
	Id          bson.ObjectID `bson:"_id,omitempty"`
	Name        string        `bson:"name"`
	Variety     string        `bson:"variety"`
	Photo       string        `bson:"photo"`
	DatePlanted string        `bson:"date_planted"`
}

type harvestDocument struct {
	Id       bson.ObjectID `bson:"_id,omitempty"`
	Quantity string        `bson:"quantity"`
	Date     string        `bson:"date"`
	PlantId  string        `bson:"plant_id"`
}

// MongoDatabase stores plants and harvests in two collections of a MongoDB
// database.
type MongoDatabase struct {
	cfg      config.MongoConfig
	log      *zap.Logger
	client   *mongo.Client
	plants   *mongo.Collection
	harvests *mongo.Collection
	// backoff policy for harvest deletions
	newBackOff func() backoff.BackOff
	// deleteHarvests removes every harvest of the plant with the given hex id
	deleteHarvests func(ctx context.Context, plantHex string) (int64, error)
}

func NewMongoDatabase(cfg config.MongoConfig, log *zap.Logger) *MongoDatabase {
	if log == nil {
		log = zap.NewNop()
	}
	db := &MongoDatabase{
		cfg:        cfg,
		log:        log.Named("mongo"),
		newBackOff: defaultDeleteBackOff,
	}
	db.deleteHarvests = db.deleteManyHarvests
	return db
}

func defaultDeleteBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithMaxRetries(b, maxDeleteRetries)
}

// Connect creates the client and checks the server is reachable.
func (db *MongoDatabase) Connect(ctx context.Context) error {
	client, err := mongo.Connect(options.Client().ApplyURI(db.cfg.URI))
	if err != nil {
		return unavailable("Connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return unavailable("Connect", err)
	}
	db.client = client
	d := client.Database(db.cfg.Database)
	db.plants = d.Collection(plantsCollection)
	db.harvests = d.Collection(harvestsCollection)
	return nil
}

func (db *MongoDatabase) Close(ctx context.Context) error {
	if db.client == nil {
		return nil
	}
	return db.client.Disconnect(ctx)
}

func (db *MongoDatabase) Ping(ctx context.Context) error {
	if db.client == nil {
		return unavailable("Ping", errors.New("not connected"))
	}
	if err := db.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("Ping", err)
	}
	return nil
}

// GetPlants returns every plant in the collection's natural order.
func (db *MongoDatabase) GetPlants(ctx context.Context) ([]plants.Plant, error) {
	cur, err := db.plants.Find(ctx, bson.D{})
	if err != nil {
		return nil, unavailable("GetPlants", err)
	}
	var docs []plantDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("GetPlants", err)
	}
	ps := make([]plants.Plant, len(docs))
	for i, d := range docs {
		ps[i] = d.toPlant()
	}
	return ps, nil
}

func (db *MongoDatabase) GetPlant(ctx context.Context, id plants.ID) (plants.Plant, error) {
	oid, err := parseObjectID("GetPlant", id)
	if err != nil {
		return plants.Plant{}, err
	}
	var d plantDocument
	err = db.plants.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return plants.Plant{}, notFound("GetPlant", err)
	}
	if err != nil {
		return plants.Plant{}, unavailable("GetPlant", err)
	}
	return d.toPlant(), nil
}

// AddNewPlant inserts p and returns the identifier assigned by the server.
func (db *MongoDatabase) AddNewPlant(ctx context.Context, p plants.Plant) (plants.ID, error) {
	res, err := db.plants.InsertOne(ctx, plantDocument{
		Name:        p.Name,
		Variety:     p.Variety,
		Photo:       p.Photo,
		DatePlanted: p.DatePlanted,
	})
	if err != nil {
		return "", unavailable("AddNewPlant", err)
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", unavailable("AddNewPlant",
			fmt.Errorf("unexpected inserted id type %T", res.InsertedID))
	}
	return plants.ID(oid.Hex()), nil
}

func (db *MongoDatabase) UpdatePlant(ctx context.Context, id plants.ID, p plants.Plant) error {
	oid, err := parseObjectID("UpdatePlant", id)
	if err != nil {
		return err
	}
	res, err := db.plants.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: p.Name},
			{Key: "variety", Value: p.Variety},
			{Key: "photo", Value: p.Photo},
			{Key: "date_planted", Value: p.DatePlanted},
		}}},
	)
	if err != nil {
		return unavailable("UpdatePlant", err)
	}
	if res.MatchedCount == 0 {
		return notFound("UpdatePlant", nil)
	}
	return nil
}

// DeletePlant deletes the harvests of the plant, then the plant, then sweeps
// the harvests once more to catch any logged in between. Standalone servers
// have no multi-document transactions; a harvest left behind by a failed
// sweep is an orphan for DeleteOrphanHarvests.
func (db *MongoDatabase) DeletePlant(ctx context.Context, id plants.ID) error {
	oid, err := parseObjectID("DeletePlant", id)
	if err != nil {
		return err
	}

	if _, err := db.deleteHarvestsWithRetry(ctx, oid); err != nil {
		return unavailable("DeletePlant", err)
	}

	res, err := db.plants.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return unavailable("DeletePlant", err)
	}
	if res.DeletedCount == 0 {
		return notFound("DeletePlant", nil)
	}

	n, err := db.deleteHarvestsWithRetry(ctx, oid)
	if err != nil {
		db.log.Warn("Harvest sweep after plant deletion failed",
			zap.String("plant_id", oid.Hex()), zap.Error(err))
		return nil
	}
	if n > 0 {
		db.log.Info("Removed harvests logged during plant deletion",
			zap.String("plant_id", oid.Hex()), zap.Int64("count", n))
	}
	return nil
}

func (db *MongoDatabase) deleteHarvestsWithRetry(ctx context.Context, plant bson.ObjectID) (int64, error) {
	return retryCount(ctx, db.newBackOff(), func() (int64, error) {
		return db.deleteHarvests(ctx, plant.Hex())
	})
}

func (db *MongoDatabase) deleteManyHarvests(ctx context.Context, plantHex string) (int64, error) {
	res, err := db.harvests.DeleteMany(ctx, bson.D{{Key: "plant_id", Value: plantHex}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// retryCount runs op until it succeeds, b gives up or ctx is done, and returns
// the count of the last successful run.
func retryCount(ctx context.Context, b backoff.BackOff, op func() (int64, error)) (int64, error) {
	var n int64
	err := backoff.Retry(func() error {
		var err error
		n, err = op()
		return err
	}, backoff.WithContext(b, ctx))
	return n, err
}

// GetHarvests returns the harvests logged against plantId. The identifier is
// checked for well-formedness only; an unknown plant has no harvests.
func (db *MongoDatabase) GetHarvests(ctx context.Context, plantId plants.ID) ([]plants.Harvest, error) {
	oid, err := parseObjectID("GetHarvests", plantId)
	if err != nil {
		return nil, err
	}
	cur, err := db.harvests.Find(ctx, bson.D{{Key: "plant_id", Value: oid.Hex()}})
	if err != nil {
		return nil, unavailable("GetHarvests", err)
	}
	var docs []harvestDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("GetHarvests", err)
	}
	hs := make([]plants.Harvest, len(docs))
	for i, d := range docs {
		hs[i] = d.toHarvest()
	}
	return hs, nil
}

// AddNewHarvest checks the plant exists, then inserts the harvest. The two
// calls are not atomic with respect to DeletePlant, whose final sweep covers
// the gap.
func (db *MongoDatabase) AddNewHarvest(ctx context.Context, h plants.Harvest) (plants.ID, error) {
	oid, err := parseObjectID("AddNewHarvest", h.PlantId)
	if err != nil {
		return "", err
	}
	n, err := db.plants.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}}, options.Count().SetLimit(1))
	if err != nil {
		return "", unavailable("AddNewHarvest", err)
	}
	if n == 0 {
		return "", notFound("AddNewHarvest", fmt.Errorf("plant %s", h.PlantId))
	}

	res, err := db.harvests.InsertOne(ctx, harvestDocument{
		Quantity: h.Quantity,
		Date:     h.Date,
		PlantId:  oid.Hex(),
	})
	if err != nil {
		return "", unavailable("AddNewHarvest", err)
	}
	hid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", unavailable("AddNewHarvest",
			fmt.Errorf("unexpected inserted id type %T", res.InsertedID))
	}
	return plants.ID(hid.Hex()), nil
}

// DeleteOrphanHarvests removes harvests whose plant is missing from a snapshot
// of the plant ids. Harvests inserted after the snapshot was taken are left
// for the next sweep, their plant may be newer than the snapshot.
func (db *MongoDatabase) DeleteOrphanHarvests(ctx context.Context) (int64, error) {
	cutoff := bson.NewObjectIDFromTimestamp(time.Now())
	cur, err := db.plants.Find(ctx, bson.D{},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return 0, unavailable("DeleteOrphanHarvests", err)
	}
	var docs []plantDocument
	if err := cur.All(ctx, &docs); err != nil {
		return 0, unavailable("DeleteOrphanHarvests", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.Id.Hex()
	}

	res, err := db.harvests.DeleteMany(ctx, orphanFilter(ids, cutoff))
	if err != nil {
		return 0, unavailable("DeleteOrphanHarvests", err)
	}
	return res.DeletedCount, nil
}

// orphanFilter matches harvests created before cutoff whose plant is not in
// plantHexes.
func orphanFilter(plantHexes []string, cutoff bson.ObjectID) bson.D {
	return bson.D{
		{Key: "_id", Value: bson.D{{Key: "$lt", Value: cutoff}}},
		{Key: "plant_id", Value: bson.D{{Key: "$nin", Value: plantHexes}}},
	}
}

func parseObjectID(op string, id plants.ID) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id.String())
	if err != nil {
		return bson.NilObjectID, invalidID(op, id.String(), err)
	}
	return oid, nil
}

func (d plantDocument) toPlant() plants.Plant {
	return plants.Plant{
		Id:          plants.ID(d.Id.Hex()),
		Name:        d.Name,
		Variety:     d.Variety,
		Photo:       d.Photo,
		DatePlanted: d.DatePlanted,
	}
}

func (d harvestDocument) toHarvest() plants.Harvest {
	return plants.Harvest{
		Id:       plants.ID(d.Id.Hex()),
		PlantId:  plants.ID(d.PlantId),
		Quantity: d.Quantity,
		Date:     d.Date,
	}
}
