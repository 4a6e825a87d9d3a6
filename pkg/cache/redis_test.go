package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestRosterKeysMatchInvalidationPattern(t *testing.T) {
	key := RosterKey("sec-1", "2025/2026", 2, 50)
	assert.Equal(t, "rosters:sec-1:2025/2026:2:50", key)

	prefix := strings.TrimSuffix(RosterPattern, "*")
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.False(t, strings.HasPrefix(ImportJobKey("job-1"), prefix))
}
