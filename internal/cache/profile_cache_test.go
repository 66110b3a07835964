package cache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lostfound-chat/internal/mocks"
	"lostfound-chat/internal/models"
)

// fakeRedis answers GET, SET and DEL in process so no server is needed.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	fail bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("fake redis does not dial")
	}
}

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (f *fakeRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			cmd.SetErr(fmt.Errorf("redis unavailable"))
			return cmd.Err()
		}
		args := cmd.Args()
		key := fmt.Sprint(args[1])
		switch c := cmd.(type) {
		case *redis.StringCmd:
			val, ok := f.data[key]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(val)
		case *redis.StatusCmd:
			switch v := args[2].(type) {
			case []byte:
				f.data[key] = string(v)
			default:
				f.data[key] = fmt.Sprint(v)
			}
			if len(args) >= 5 {
				if n, ok := args[4].(int64); ok {
					unit := time.Second
					if args[3] == "px" {
						unit = time.Millisecond
					}
					f.ttls[key] = time.Duration(n) * unit
				}
			}
			c.SetVal("OK")
		case *redis.IntCmd:
			_, ok := f.data[key]
			delete(f.data, key)
			if ok {
				c.SetVal(1)
			}
		}
		return nil
	}
}

func newTestCache(t *testing.T, repo *mocks.UserRepositoryMock) (*ProfileCache, *fakeRedis) {
	t.Helper()
	fake := newFakeRedis()
	client := redis.NewClient(&redis.Options{Addr: "fake:6379"})
	client.AddHook(fake)
	t.Cleanup(func() { client.Close() })
	return NewProfileCache(repo, client, time.Minute, zap.NewNop()), fake
}

func TestGetProfileCachesRepositoryHit(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	cache, fake := newTestCache(t, repo)
	profile := models.UserProfile{UID: "u2", DisplayName: "Bo", PhotoURL: "http://img/bo.png"}

	repo.On("GetProfile", mock.Anything, "u2").Return(profile, true, nil).Once()

	got, found, err := cache.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Bo", got.DisplayName)

	got, found, err = cache.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "http://img/bo.png", got.PhotoURL)

	fake.mu.Lock()
	assert.Contains(t, fake.data, "chat:profile:u2")
	assert.Equal(t, time.Minute, fake.ttls["chat:profile:u2"])
	fake.mu.Unlock()
	repo.AssertExpectations(t)
}

func TestGetProfileDoesNotCacheMissing(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	cache, fake := newTestCache(t, repo)

	repo.On("GetProfile", mock.Anything, "ghost").Return(models.UserProfile{}, false, nil).Twice()

	for i := 0; i < 2; i++ {
		_, found, err := cache.GetProfile(context.Background(), "ghost")
		require.NoError(t, err)
		assert.False(t, found)
	}
	fake.mu.Lock()
	assert.Empty(t, fake.data)
	fake.mu.Unlock()
	repo.AssertExpectations(t)
}

func TestGetProfileFallsThroughOnRedisFailure(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	cache, fake := newTestCache(t, repo)
	fake.fail = true

	repo.On("GetProfile", mock.Anything, "u2").Return(models.UserProfile{UID: "u2", DisplayName: "Bo"}, true, nil).Once()

	got, found, err := cache.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Bo", got.DisplayName)
	repo.AssertExpectations(t)
}

func TestGetProfilePropagatesRepositoryError(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	cache, _ := newTestCache(t, repo)

	repo.On("GetProfile", mock.Anything, "u2").Return(models.UserProfile{}, false, assert.AnError).Once()

	_, _, err := cache.GetProfile(context.Background(), "u2")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestUpsertProfileEvicts(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	cache, fake := newTestCache(t, repo)
	fake.data["chat:profile:u1"] = `{"uid":"u1","display_name":"Old"}`

	profile := models.UserProfile{UID: "u1", DisplayName: "New"}
	repo.On("UpsertProfile", mock.Anything, profile).Return(profile, nil).Once()

	_, err := cache.UpsertProfile(context.Background(), profile)
	require.NoError(t, err)
	fake.mu.Lock()
	assert.NotContains(t, fake.data, "chat:profile:u1")
	fake.mu.Unlock()
}
