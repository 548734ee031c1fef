package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-smart-notifications/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHash struct{ mock.Mock }

func (m *mockHash) HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd {
	args := m.Called(ctx, key)
	val, _ := args.Get(0).(map[string]string)
	return goredis.NewMapStringStringResult(val, args.Error(1))
}

func (m *mockHash) HSet(ctx context.Context, key string, values ...any) *goredis.IntCmd {
	args := m.Called(ctx, key, values)
	return goredis.NewIntResult(1, args.Error(0))
}

func TestSave_WritesJSONField(t *testing.T) {
	client := new(mockHash)
	client.On("HSet", mock.Anything, "flags", mock.MatchedBy(func(values []any) bool {
		if len(values) != 2 || values[0] != "dual_write" {
			return false
		}
		var f domain.FeatureFlag
		return json.Unmarshal([]byte(values[1].(string)), &f) == nil && f.Enabled
	})).Return(nil)

	err := NewFlagStore(client, "flags").Save(context.Background(), domain.FeatureFlag{
		Name: "dual_write", Enabled: true, UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestLoadAll_DecodesAndSorts(t *testing.T) {
	client := new(mockHash)
	client.On("HGetAll", mock.Anything, "flags").Return(map[string]string{
		"dual_write":      `{"enabled":true}`,
		"backend_rollout": `{"enabled":true,"config":{"rollout_percentage":25,"allowlist":["vip"]}}`,
	}, nil)

	flags, err := NewFlagStore(client, "flags").LoadAll(context.Background())
	require.NoError(t, err)

	require.Len(t, flags, 2)
	assert.Equal(t, "backend_rollout", flags[0].Name)
	assert.Equal(t, float64(25), flags[0].Config["rollout_percentage"])
	assert.Equal(t, "dual_write", flags[1].Name)
}

func TestLoadAll_Errors(t *testing.T) {
	down := new(mockHash)
	down.On("HGetAll", mock.Anything, "flags").Return(nil, errors.New("connection refused"))
	_, err := NewFlagStore(down, "flags").LoadAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	corrupt := new(mockHash)
	corrupt.On("HGetAll", mock.Anything, "flags").Return(map[string]string{"dual_write": "{"}, nil)
	_, err = NewFlagStore(corrupt, "flags").LoadAll(context.Background())
	assert.ErrorContains(t, err, "decode flag dual_write")
}
