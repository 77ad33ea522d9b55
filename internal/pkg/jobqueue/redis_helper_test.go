package jobqueue

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
)

// testRedisDB keeps queue tests away from the app's cache (0) and sessions (1).
const testRedisDB = 14

// testRedis returns a client on an emptied testRedisDB, or skips the test
// when no Redis answers on CACHE_HOST, "cache" or localhost.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	port := env.GetEnv("CACHE_PORT", "6379")
	candidates := []string{env.GetEnv("CACHE_HOST", ""), "cache", "localhost"}

	var lastErr error
	for _, host := range candidates {
		if host == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(host, port),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       testRedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		if err == nil {
			err = client.FlushDB(ctx).Err()
		}
		cancel()
		if err != nil {
			lastErr = err
			_ = client.Close()
			continue
		}
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
		return client
	}

	t.Skipf("redis not reachable: %v", lastErr)
	return nil
}
