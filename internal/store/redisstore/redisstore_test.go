package redisstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"olmcore/internal/domain"
	"olmcore/internal/store/redisstore"
	"olmcore/internal/store/storetest"
)

func TestRedisContract(t *testing.T) {
	addr := os.Getenv("OLMCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OLMCORE_TEST_REDIS_ADDR not set")
	}
	storetest.Run(t, func(t *testing.T) domain.CryptoStore {
		ctx := context.Background()
		s, err := redisstore.Dial(ctx, addr, "olmcore-test:"+uuid.NewString()+":")
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Reset(context.Background())
			_ = s.Close()
		})
		return s
	})
}
