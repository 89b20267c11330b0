package memoize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := newConfig(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.uid)
	assert.Equal(t, DefaultEvictPercent, cfg.evictPercent)
	assert.Equal(t, DefaultHistoryFactor, cfg.historyFactor)
	assert.Equal(t, -1, cfg.maxRecords)
	assert.Equal(t, -1, cfg.maxArgs)
	assert.Equal(t, -1, cfg.callbackIndex)
	assert.Equal(t, KeyDefault, cfg.keyMode)
	assert.NotNil(t, cfg.controller)
	assert.Zero(t, cfg.ttl)
}

func TestDefaultUIDsAreDistinct(t *testing.T) {
	a, err := newConfig(nil)
	require.NoError(t, err)
	b, err := newConfig(nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.uid, b.uid)
}

func TestWithTTLString(t *testing.T) {
	cfg, err := newConfig([]Option{WithTTLString("1h30m")})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.ttl)
}

func TestTTLFromEnv(t *testing.T) {
	t.Setenv("MEMOIZE_TEST_TTL", "45s")
	cfg, err := newConfig([]Option{TTLFromEnv("MEMOIZE_TEST_TTL")})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.ttl)
}

func TestTTLFromEnvUnset(t *testing.T) {
	cfg, err := newConfig([]Option{TTLFromEnv("MEMOIZE_TEST_TTL_UNSET")})
	require.NoError(t, err)
	assert.Zero(t, cfg.ttl)
}

func TestCoerceOptionsMutuallyExclusive(t *testing.T) {
	identity := func(arg any, index int) any { return arg }
	_, err := newConfig([]Option{WithCoerce(identity), WithCoerceEach(identity)})
	assert.Error(t, err)
}

func TestEventTypeStrings(t *testing.T) {
	assert.Equal(t, "retrieve", EventRetrieve.String())
	assert.Equal(t, "overflow", EventOverflow.String())
	assert.Equal(t, "disable", EventDisable.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
