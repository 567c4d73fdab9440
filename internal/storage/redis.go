// Package storage owns the process-wide connections: redis holds the live
// session records, postgres the durable player profiles.
package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Rdb backs the session store adapter.
var Rdb *redis.Client
var Ctx = context.Background()

func InitRedis(addr, password string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return Rdb.Ping(Ctx).Err()
}
