package redis

import (
	"testing"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestBuildKeySkipsEmptyParts(t *testing.T) {
	c := &Client{}
	require.Equal(t, "fc:idempotency:stripe:evt_1", c.IdempotencyKey("stripe", "evt_1"))
	require.Equal(t, "fc:lock:payment_session", c.LockKey("payment_session", ""))
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)
}

func TestOptionsFromConfigPrefersURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:      "redis://:pw@localhost:6380/2",
		Address:  "ignored:6379",
		PoolSize: 15,
	})
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 15, opts.PoolSize)
}
