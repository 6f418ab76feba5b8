// Package progress provides durable, TTL-bounded persistence of run state
// plus a publish/subscribe channel for progress events. It decouples crash
// recovery and progress reporting from workflow logic.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/routeworks/escort/pkg/lifecycle"
	"github.com/routeworks/escort/run"
)

// Store persists run state in Redis under a TTL and publishes progress
// events. It is the sole writer of the durable copy and the sole publisher
// of events.
type Store struct {
	client   *redis.Client
	logger   *slog.Logger
	prefix   string
	channel  string
	stateTTL time.Duration
}

// New creates a Store with its own Redis client. The connection is verified
// during lifecycle startup, not here.
func New(cfg *Config, logger *slog.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Store{
		client:   client,
		logger:   logger.With("system", "progress"),
		prefix:   cfg.KeyPrefix,
		channel:  cfg.Channel,
		stateTTL: cfg.StateTTLDuration(),
	}
}

// Start registers startup and shutdown hooks with the lifecycle coordinator.
func (s *Store) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting progress store")

	lc.OnStartup(func() {
		if err := s.client.Ping(lc.Context()).Err(); err != nil {
			s.logger.Error("redis ping failed", "error", err)
			return
		}
		s.logger.Info("redis connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := s.client.Close(); err != nil {
			s.logger.Error("redis close failed", "error", err)
			return
		}
		s.logger.Info("redis connection closed")
	})

	return nil
}

// LoadState loads previously persisted state for a run. It returns
// ErrNotFound when no state exists and ErrStateRecovery when the persisted
// payload cannot be decoded.
func (s *Store) LoadState(ctx context.Context, runID uuid.UUID) (*run.State, error) {
	data, err := s.client.Get(ctx, s.stateKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", runID, err)
	}

	var state run.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStateRecovery, runID, err)
	}

	return &state, nil
}

// SaveState persists the full run state under the configured TTL. Bounded
// retention keeps abandoned runs from accumulating indefinitely.
func (s *Store) SaveState(ctx context.Context, state *run.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", state.RunID, err)
	}

	if err := s.client.Set(ctx, s.stateKey(state.RunID), data, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("save state %s: %w", state.RunID, err)
	}
	return nil
}

// DeleteState removes persisted state, called only on successful completion.
// Failed runs are retained under TTL so partial progress stays inspectable.
func (s *Store) DeleteState(ctx context.Context, runID uuid.UUID) error {
	if err := s.client.Del(ctx, s.stateKey(runID)).Err(); err != nil {
		return fmt.Errorf("delete state %s: %w", runID, err)
	}
	return nil
}

// PublishEvent publishes a progress event on the configured channel.
// Publishing is best-effort: failures are logged and swallowed so progress
// reporting can never fail the workflow.
func (s *Store) PublishEvent(ctx context.Context, event Event) {
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode progress event failed", "event", event.Event, "error", err)
		return
	}

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Warn(
			"publish progress event failed",
			"event", event.Event,
			"run_id", event.RunID,
			"error", err,
		)
	}
}

// Percent computes weighted percent-complete for a running state. See the
// package-level Percent function.
func (s *Store) Percent(state *run.State, subCurrent, subTotal int) int {
	return Percent(state, subCurrent, subTotal)
}

// CheckCancellation polls the external cancellation key for a run. The key's
// existence, not its value, signals cancellation-requested. On the first true
// result the cancelled flag is latched into the state and persisted.
func (s *Store) CheckCancellation(ctx context.Context, state *run.State) (bool, error) {
	if state.Cancelled {
		return true, nil
	}

	n, err := s.client.Exists(ctx, s.cancelKey(state.RunID)).Result()
	if err != nil {
		return false, fmt.Errorf("check cancellation %s: %w", state.RunID, err)
	}
	if n == 0 {
		return false, nil
	}

	state.Cancelled = true
	if err := s.SaveState(ctx, state); err != nil {
		s.logger.Warn("persist cancellation latch failed", "run_id", state.RunID, "error", err)
	}
	return true, nil
}

// RequestCancel sets the cancellation key for a run. The engine observes it
// between phases; a request issued mid-phase takes effect once the current
// phase's handler returns.
func (s *Store) RequestCancel(ctx context.Context, runID uuid.UUID) error {
	if err := s.client.Set(ctx, s.cancelKey(runID), "1", s.stateTTL).Err(); err != nil {
		return fmt.Errorf("request cancel %s: %w", runID, err)
	}
	return nil
}

func (s *Store) stateKey(runID uuid.UUID) string {
	return fmt.Sprintf("%s:run:%s:state", s.prefix, runID)
}

func (s *Store) cancelKey(runID uuid.UUID) string {
	return fmt.Sprintf("%s:run:%s:cancel", s.prefix, runID)
}
