package redis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisConfig(t *testing.T) {
	config := &RedisConfig{
		Host:      "localhost",
		Port:      6379,
		Password:  "secret",
		Namespace: "valid8",
	}

	require.Equal(t, "localhost", config.Host)
	require.Equal(t, 6379, config.Port)
	require.Equal(t, "secret", config.Password)
	require.Equal(t, "valid8", config.Namespace)
}

func TestNewRedisClientInvalidHost(t *testing.T) {
	config := &RedisConfig{
		Host: "invalid-redis-host-that-does-not-exist",
		Port: 6379,
	}

	client, err := NewRedisClient(config)
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestNewRedisClientEmptyConfig(t *testing.T) {
	client, err := NewRedisClient(&RedisConfig{})
	require.Error(t, err)
	require.Nil(t, client)
}

func TestNewRedisSentinelClientInvalidHost(t *testing.T) {
	config := &RedisSentinelConfig{
		SentinelHost: "invalid-sentinel-host-that-does-not-exist",
		SentinelPort: 26379,
		MasterName:   "mymaster",
	}

	client, err := NewRedisSentinelClient(config)
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "failed to connect to Redis through Sentinel")
}
