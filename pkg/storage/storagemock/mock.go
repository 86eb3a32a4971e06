package storagemock

import (
	"context"

	"github.com/solarrouter/solarrouter/pkg/storage"
	"github.com/solarrouter/solarrouter/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) LoadRules(ctx context.Context) ([]types.Rule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Rule), args.Error(1)
}

func (m *MockDatabase) SaveRules(ctx context.Context, rules []types.Rule) error {
	args := m.Called(ctx, rules)
	return args.Error(0)
}

func (m *MockDatabase) LoadOverrides(ctx context.Context) (types.Overrides, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Overrides), args.Bool(1), args.Error(2)
}

func (m *MockDatabase) SaveOverrides(ctx context.Context, o types.Overrides) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockDatabase) LoadTankState(ctx context.Context) (types.TankState, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.TankState), args.Bool(1), args.Error(2)
}

func (m *MockDatabase) SaveTankState(ctx context.Context, s types.TankState) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
