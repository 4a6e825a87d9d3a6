package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-roster-sync/pkg/config"
)

// NewRedis returns a configured Redis client, or nil when redis is disabled.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return client, nil
}

// ImportJobKey is the cache key holding the latest snapshot of an import job.
func ImportJobKey(jobID string) string {
	return "imports:job:" + jobID
}

// RosterKey is the cache key of one page of a section's class list.
func RosterKey(sectionID, academicYear string, page, size int) string {
	return fmt.Sprintf("rosters:%s:%s:%d:%d", sectionID, academicYear, page, size)
}

// RosterPattern matches every cached class list.
const RosterPattern = "rosters:*"
