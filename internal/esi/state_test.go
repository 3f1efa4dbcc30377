package esi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"refcache/internal/shared/errors"
	"refcache/internal/shared/logger"
)

func TestStateIsSingleUse(t *testing.T) {
	sm := NewStateManager(testclock.NewFakeClock(time.Now()), logger.Discard())

	state, err := sm.Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, state)

	require.NoError(t, sm.Validate(state))
	assert.True(t, errors.Is(sm.Validate(state), errors.ErrorTypeValidation))
	assert.True(t, errors.Is(sm.Validate(""), errors.ErrorTypeValidation))
}

func TestStateExpires(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	sm := NewStateManager(clk, logger.Discard())

	stale, err := sm.Generate()
	require.NoError(t, err)

	clk.Step(StateTTL + time.Second)
	assert.True(t, errors.Is(sm.Validate(stale), errors.ErrorTypeValidation))

	stale, err = sm.Generate()
	require.NoError(t, err)
	clk.Step(StateTTL + time.Second)

	_, err = sm.Generate()
	require.NoError(t, err)
	assert.Equal(t, 1, sm.Len(), "expired states are swept on generate")
	assert.Error(t, sm.Validate(stale))
}
