package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("REFCACHE_TEST_STRING", "")
	t.Setenv("REFCACHE_TEST_INT", "not-a-number")
	t.Setenv("REFCACHE_TEST_DURATION", "1.5s")
	t.Setenv("REFCACHE_TEST_BOOL", "true")
	t.Setenv("REFCACHE_TEST_FLOAT", "2.5")

	assert.Equal(t, "fallback", GetEnv("REFCACHE_TEST_STRING", "fallback"))
	assert.Equal(t, 7, GetEnvInt("REFCACHE_TEST_INT", 7))
	assert.Equal(t, 1500*time.Millisecond, GetEnvDuration("REFCACHE_TEST_DURATION", time.Second))
	assert.True(t, GetEnvBool("REFCACHE_TEST_BOOL", false))
	assert.Equal(t, 2.5, GetEnvFloat("REFCACHE_TEST_FLOAT", 0))
}
