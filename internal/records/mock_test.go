package records

import (
	"context"

	"github.com/mgmu/hortus/internal/plants"
	"github.com/stretchr/testify/mock"
)

type mockDatabase struct {
	mock.Mock
}

func (m *mockDatabase) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDatabase) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDatabase) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDatabase) GetPlants(ctx context.Context) ([]plants.Plant, error) {
	args := m.Called(ctx)
	ps, _ := args.Get(0).([]plants.Plant)
	return ps, args.Error(1)
}

func (m *mockDatabase) GetPlant(ctx context.Context, id plants.ID) (plants.Plant, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(plants.Plant), args.Error(1)
}

func (m *mockDatabase) AddNewPlant(ctx context.Context, p plants.Plant) (plants.ID, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(plants.ID), args.Error(1)
}

func (m *mockDatabase) UpdatePlant(ctx context.Context, id plants.ID, p plants.Plant) error {
	return m.Called(ctx, id, p).Error(0)
}

func (m *mockDatabase) DeletePlant(ctx context.Context, id plants.ID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDatabase) GetHarvests(ctx context.Context, plantId plants.ID) ([]plants.Harvest, error) {
	args := m.Called(ctx, plantId)
	hs, _ := args.Get(0).([]plants.Harvest)
	return hs, args.Error(1)
}

func (m *mockDatabase) AddNewHarvest(ctx context.Context, h plants.Harvest) (plants.ID, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(plants.ID), args.Error(1)
}

func (m *mockDatabase) DeleteOrphanHarvests(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
