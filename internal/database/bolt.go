package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mgmu/hortus/internal/plants"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	boltBucketPlants   = "plants"   // key: plant id -> plant BSON
	boltBucketHarvests = "harvests" // key: plant id -> bucket (key: harvest id -> harvest BSON)
)

var errNoSuchKey = errors.New("no such key")

type boltPlant struct {
	Name        string `bson:"name"`
	Variety     string `bson:"variety"`
	Photo       string `bson:"photo"`
	DatePlanted string `bson:"date_planted"`
}

type boltHarvest struct {
	Quantity string `bson:"quantity"`
	Date     string `bson:"date"`
	PlantId  string `bson:"plant_id"`
}

// BoltDatabase keeps plants and harvests in a single bbolt file. Identifiers
// are time-ordered UUIDs, so iteration follows creation order.
type BoltDatabase struct {
	path string
	db   *bbolt.DB
}

func NewBoltDatabase(path string) *BoltDatabase {
	return &BoltDatabase{path: path}
}

func (b *BoltDatabase) Connect(context.Context) error {
	db, err := bbolt.Open(b.path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return unavailable("Connect", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(boltBucketPlants)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(boltBucketHarvests)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return unavailable("Connect", err)
	}

	b.db = db
	return nil
}

func (b *BoltDatabase) Close(context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *BoltDatabase) Ping(context.Context) error {
	if b.db == nil {
		return unavailable("Ping", errors.New("not connected"))
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		return nil
	})
}

func (b *BoltDatabase) GetPlants(context.Context) ([]plants.Plant, error) {
	out := []plants.Plant{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketPlants)).ForEach(func(k, v []byte) error {
			p, err := decodePlant(k, v)
			if err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("GetPlants", err)
	}
	return out, nil
}

func (b *BoltDatabase) GetPlant(_ context.Context, id plants.ID) (plants.Plant, error) {
	key, err := boltKey("GetPlant", id)
	if err != nil {
		return plants.Plant{}, err
	}
	var p plants.Plant
	err = b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(boltBucketPlants)).Get(key)
		if v == nil {
			return errNoSuchKey
		}
		p, err = decodePlant(key, v)
		return err
	})
	if err != nil {
		return plants.Plant{}, boltError("GetPlant", err)
	}
	return p, nil
}

func (b *BoltDatabase) AddNewPlant(_ context.Context, p plants.Plant) (plants.ID, error) {
	uid, err := uuid.NewV7()
	if err != nil {
		return "", unavailable("AddNewPlant", err)
	}
	data, err := bson.Marshal(boltPlant{
		Name:        p.Name,
		Variety:     p.Variety,
		Photo:       p.Photo,
		DatePlanted: p.DatePlanted,
	})
	if err != nil {
		return "", unavailable("AddNewPlant", err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketPlants)).Put([]byte(uid.String()), data)
	})
	if err != nil {
		return "", unavailable("AddNewPlant", err)
	}
	return plants.ID(uid.String()), nil
}

func (b *BoltDatabase) UpdatePlant(_ context.Context, id plants.ID, p plants.Plant) error {
	key, err := boltKey("UpdatePlant", id)
	if err != nil {
		return err
	}
	data, err := bson.Marshal(boltPlant{
		Name:        p.Name,
		Variety:     p.Variety,
		Photo:       p.Photo,
		DatePlanted: p.DatePlanted,
	})
	if err != nil {
		return unavailable("UpdatePlant", err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucketPlants))
		if bucket.Get(key) == nil {
			return errNoSuchKey
		}
		return bucket.Put(key, data)
	})
	return boltError("UpdatePlant", err)
}

// DeletePlant removes the plant and its harvest bucket in one transaction.
func (b *BoltDatabase) DeletePlant(_ context.Context, id plants.ID) error {
	key, err := boltKey("DeletePlant", id)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		ps := tx.Bucket([]byte(boltBucketPlants))
		if ps.Get(key) == nil {
			return errNoSuchKey
		}
		if err := ps.Delete(key); err != nil {
			return err
		}
		err := tx.Bucket([]byte(boltBucketHarvests)).DeleteBucket(key)
		if errors.Is(err, berrors.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	return boltError("DeletePlant", err)
}

func (b *BoltDatabase) GetHarvests(_ context.Context, plantId plants.ID) ([]plants.Harvest, error) {
	key, err := boltKey("GetHarvests", plantId)
	if err != nil {
		return nil, err
	}
	out := []plants.Harvest{}
	err = b.db.View(func(tx *bbolt.Tx) error {
		hb := tx.Bucket([]byte(boltBucketHarvests)).Bucket(key)
		if hb == nil {
			return nil
		}
		return hb.ForEach(func(k, v []byte) error {
			var doc boltHarvest
			if err := bson.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decoding harvest %s: %w", k, err)
			}
			out = append(out, plants.Harvest{
				Id:       plants.ID(k),
				PlantId:  plants.ID(doc.PlantId),
				Quantity: doc.Quantity,
				Date:     doc.Date,
			})
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("GetHarvests", err)
	}
	return out, nil
}

// AddNewHarvest inserts the harvest if its plant exists, in one transaction.
func (b *BoltDatabase) AddNewHarvest(_ context.Context, h plants.Harvest) (plants.ID, error) {
	key, err := boltKey("AddNewHarvest", h.PlantId)
	if err != nil {
		return "", err
	}
	uid, err := uuid.NewV7()
	if err != nil {
		return "", unavailable("AddNewHarvest", err)
	}
	data, err := bson.Marshal(boltHarvest{
		Quantity: h.Quantity,
		Date:     h.Date,
		PlantId:  string(key),
	})
	if err != nil {
		return "", unavailable("AddNewHarvest", err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(boltBucketPlants)).Get(key) == nil {
			return errNoSuchKey
		}
		hb, err := tx.Bucket([]byte(boltBucketHarvests)).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		return hb.Put([]byte(uid.String()), data)
	})
	if err != nil {
		return "", boltError("AddNewHarvest", err)
	}
	return plants.ID(uid.String()), nil
}

func (b *BoltDatabase) DeleteOrphanHarvests(context.Context) (int64, error) {
	var deleted int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		ps := tx.Bucket([]byte(boltBucketPlants))
		hs := tx.Bucket([]byte(boltBucketHarvests))

		var orphans [][]byte
		err := hs.ForEachBucket(func(k []byte) error {
			if ps.Get(k) == nil {
				orphans = append(orphans, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range orphans {
			deleted += int64(hs.Bucket(k).Stats().KeyN)
			if err := hs.DeleteBucket(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("DeleteOrphanHarvests", err)
	}
	return deleted, nil
}

// boltKey validates id and returns its canonical form as a key.
func boltKey(op string, id plants.ID) ([]byte, error) {
	uid, err := uuid.Parse(id.String())
	if err != nil {
		return nil, invalidID(op, id.String(), err)
	}
	return []byte(uid.String()), nil
}

func boltError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNoSuchKey):
		return notFound(op, nil)
	default:
		return unavailable(op, err)
	}
}

func decodePlant(k, v []byte) (plants.Plant, error) {
	var doc boltPlant
	if err := bson.Unmarshal(v, &doc); err != nil {
		return plants.Plant{}, fmt.Errorf("decoding plant %s: %w", k, err)
	}
	return plants.Plant{
		Id:          plants.ID(k),
		Name:        doc.Name,
		Variety:     doc.Variety,
		Photo:       doc.Photo,
		DatePlanted: doc.DatePlanted,
	}, nil
}
