package esi

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"refcache/internal/shared/errors"
)

// StateTTL bounds how long an SSO login may take between redirect and
// callback.
const StateTTL = 10 * time.Minute

// StateManager issues and checks the one-time state values of the SSO
// authorization code flow.
type StateManager struct {
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

func NewStateManager(clk clock.Clock, logger *slog.Logger) *StateManager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &StateManager{
		clock:  clk,
		logger: logger.With("component", "sso_state"),
		states: make(map[string]time.Time),
	}
}

// Generate creates a new state token and remembers it until it is
// validated or expires.
func (sm *StateManager) Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		sm.logger.Error("Failed to generate random bytes for state token", "error", err)
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cleanupExpired()
	sm.states[state] = sm.clock.Now()

	return state, nil
}

// Validate consumes state. A state is accepted at most once.
func (sm *StateManager) Validate(state string) error {
	if state == "" {
		return errors.Validationf("state token is required")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	createdAt, ok := sm.states[state]
	if !ok {
		sm.logger.Warn("Invalid or expired state token")
		return errors.Validationf("invalid or expired state token")
	}
	delete(sm.states, state)

	if age := sm.clock.Since(createdAt); age > StateTTL {
		sm.logger.Warn("Expired state token", "age_minutes", age.Minutes())
		return errors.Validationf("state token has expired")
	}
	return nil
}

func (sm *StateManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.states)
}

// cleanupExpired must be called with mu held.
func (sm *StateManager) cleanupExpired() {
	expired := 0
	for state, createdAt := range sm.states {
		if sm.clock.Since(createdAt) > StateTTL {
			delete(sm.states, state)
			expired++
		}
	}
	if expired > 0 {
		sm.logger.Debug("Cleaned up expired state tokens", "expired_count", expired, "remaining_count", len(sm.states))
	}
}
