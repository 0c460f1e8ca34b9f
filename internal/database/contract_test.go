package database

import (
	"context"
	"strings"
	"testing"

	"github.com/mgmu/hortus/internal/plants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabase runs the behavior every Database must share against a
// connected, empty db. malformedID must be rejected by the backend and
// unknownID must be well-formed but absent.
func testDatabase(t *testing.T, db Database, malformedID, unknownID plants.ID) {
	ctx := context.Background()

	tomato := plants.Plant{Name: "Tomato", Variety: "Roma", Photo: "", DatePlanted: "2024-05-01"}

	t.Run("add and get plant", func(t *testing.T) {
		id, err := db.AddNewPlant(ctx, tomato)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := db.GetPlant(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.Id)
		assert.Equal(t, "Tomato", got.Name)
		assert.Equal(t, "Roma", got.Variety)
		assert.Equal(t, "", got.Photo)
		assert.Equal(t, "2024-05-01", got.DatePlanted)

		hs, err := db.GetHarvests(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, hs)
	})

	t.Run("list plants contains added plants", func(t *testing.T) {
		id1, err := db.AddNewPlant(ctx, plants.Plant{Name: "Basil"})
		require.NoError(t, err)
		id2, err := db.AddNewPlant(ctx, plants.Plant{Name: "Mint"})
		require.NoError(t, err)

		ps, err := db.GetPlants(ctx)
		require.NoError(t, err)
		ids := make(map[plants.ID]string)
		for _, p := range ps {
			ids[p.Id] = p.Name
		}
		assert.Equal(t, "Basil", ids[id1])
		assert.Equal(t, "Mint", ids[id2])
	})

	t.Run("update overwrites every field", func(t *testing.T) {
		id, err := db.AddNewPlant(ctx, tomato)
		require.NoError(t, err)

		err = db.UpdatePlant(ctx, id, plants.Plant{Name: "Cherry tomato"})
		require.NoError(t, err)

		got, err := db.GetPlant(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, plants.Plant{Id: id, Name: "Cherry tomato"}, got)
	})

	t.Run("harvests are listed per plant", func(t *testing.T) {
		p1, err := db.AddNewPlant(ctx, plants.Plant{Name: "Zucchini"})
		require.NoError(t, err)
		p2, err := db.AddNewPlant(ctx, plants.Plant{Name: "Pepper"})
		require.NoError(t, err)

		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: p1, Quantity: "2 zucchinis", Date: "2024-07-01"})
		require.NoError(t, err)
		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: p1, Quantity: "1 zucchini", Date: "2024-07-08"})
		require.NoError(t, err)
		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: p2, Quantity: "5 peppers", Date: "2024-08-01"})
		require.NoError(t, err)

		hs, err := db.GetHarvests(ctx, p1)
		require.NoError(t, err)
		require.Len(t, hs, 2)
		quantities := []string{hs[0].Quantity, hs[1].Quantity}
		assert.ElementsMatch(t, []string{"2 zucchinis", "1 zucchini"}, quantities)
		for _, h := range hs {
			assert.Equal(t, p1, h.PlantId)
			assert.NotEmpty(t, h.Id)
		}

		hs, err = db.GetHarvests(ctx, p2)
		require.NoError(t, err)
		require.Len(t, hs, 1)
		assert.Equal(t, "5 peppers", hs[0].Quantity)
		assert.Equal(t, "2024-08-01", hs[0].Date)
	})

	t.Run("delete removes plant and its harvests", func(t *testing.T) {
		id, err := db.AddNewPlant(ctx, plants.Plant{Name: "Bean"})
		require.NoError(t, err)
		keep, err := db.AddNewPlant(ctx, plants.Plant{Name: "Pea"})
		require.NoError(t, err)
		for _, q := range []string{"100g", "200g"} {
			_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: id, Quantity: q})
			require.NoError(t, err)
		}
		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: keep, Quantity: "50g"})
		require.NoError(t, err)

		require.NoError(t, db.DeletePlant(ctx, id))

		_, err = db.GetPlant(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		hs, err := db.GetHarvests(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, hs)

		ps, err := db.GetPlants(ctx)
		require.NoError(t, err)
		for _, p := range ps {
			assert.NotEqual(t, id, p.Id)
		}

		hs, err = db.GetHarvests(ctx, keep)
		require.NoError(t, err)
		assert.Len(t, hs, 1)
	})

	t.Run("identifier in another case", func(t *testing.T) {
		id, err := db.AddNewPlant(ctx, plants.Plant{Name: "Leek"})
		require.NoError(t, err)
		upper := plants.ID(strings.ToUpper(id.String()))
		if upper == id {
			t.Skip("identifier has no letters")
		}

		got, err := db.GetPlant(ctx, upper)
		require.NoError(t, err)
		assert.Equal(t, id, got.Id)

		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: upper, Quantity: "3 leeks"})
		require.NoError(t, err)
		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: id, Quantity: "1 leek"})
		require.NoError(t, err)

		for _, lookup := range []plants.ID{id, upper} {
			hs, err := db.GetHarvests(ctx, lookup)
			require.NoError(t, err)
			require.Len(t, hs, 2, "harvests of %s", lookup)
			for _, h := range hs {
				assert.Equal(t, id, h.PlantId)
			}
		}

		require.NoError(t, db.DeletePlant(ctx, upper))

		_, err = db.GetPlant(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		hs, err := db.GetHarvests(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, hs)

		n, err := db.DeleteOrphanHarvests(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := db.GetPlant(ctx, unknownID)
		assert.ErrorIs(t, err, ErrNotFound)

		err = db.UpdatePlant(ctx, unknownID, tomato)
		assert.ErrorIs(t, err, ErrNotFound)

		err = db.DeletePlant(ctx, unknownID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: unknownID, Quantity: "1"})
		assert.ErrorIs(t, err, ErrNotFound)

		hs, err := db.GetHarvests(ctx, unknownID)
		require.NoError(t, err)
		assert.Empty(t, hs)
	})

	t.Run("malformed identifier", func(t *testing.T) {
		_, err := db.GetPlant(ctx, malformedID)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)

		err = db.UpdatePlant(ctx, malformedID, tomato)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)

		err = db.DeletePlant(ctx, malformedID)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)

		_, err = db.GetHarvests(ctx, malformedID)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)

		_, err = db.AddNewHarvest(ctx, plants.Harvest{PlantId: malformedID})
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, db.Ping(ctx))
	})
}
