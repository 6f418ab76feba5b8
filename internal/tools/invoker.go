package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Invoker provides a uniform invoke operation across all configured tool
// servers. Each call opens a fresh session against the owning server,
// executes under a timeout, and tears the session down on every exit path.
// Connection state in the registry is updated as a side effect of every call.
type Invoker struct {
	registry *Registry
	dial     Dialer
	logger   *slog.Logger

	callTimeout    time.Duration
	healthTimeout  time.Duration
	startupRetries int
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithDialer replaces the default streamable HTTP dialer. Used by tests and
// by deployments that front tool servers with a custom transport.
func WithDialer(d Dialer) Option {
	return func(i *Invoker) {
		i.dial = d
	}
}

// NewInvoker creates an Invoker over the given registry.
func NewInvoker(registry *Registry, cfg *Config, logger *slog.Logger, opts ...Option) *Invoker {
	inv := &Invoker{
		registry:       registry,
		dial:           DialMCP,
		logger:         logger.With("system", "tools"),
		callTimeout:    cfg.CallTimeoutDuration(),
		healthTimeout:  cfg.HealthTimeoutDuration(),
		startupRetries: cfg.StartupRetries,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Registry returns the invoker's connection registry.
func (i *Invoker) Registry() *Registry {
	return i.registry
}

// Invoke resolves the tool to its owning server, opens a session, performs
// the call under the given timeout (the configured default when zero), and
// normalizes the result. Failures are classified: transport and handshake
// errors are connection failures; remote tool errors, malformed output, and
// timeouts are tool failures.
func (i *Invoker) Invoke(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (Result, error) {
	server, err := i.registry.Route(tool)
	if err != nil {
		return Result{}, err
	}

	if timeout <= 0 {
		timeout = i.callTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := i.dial(callCtx, server)
	if err != nil {
		i.registry.RecordFailure(server.Name, err)
		return Result{}, &InvokeError{
			Server:  server.Name,
			Tool:    tool,
			Failure: FailureConnection,
			Err:     err,
		}
	}
	defer session.Close()

	raw, err := session.Call(callCtx, tool, args)
	if err != nil {
		i.registry.RecordFailure(server.Name, err)
		return Result{}, &InvokeError{
			Server:  server.Name,
			Tool:    tool,
			Failure: classifyCallFailure(err),
			Err:     err,
		}
	}

	result := coerce(textContent(raw))

	if raw.IsError {
		i.registry.RecordFailure(server.Name, fmt.Errorf("tool %s reported error", tool))
		return Result{}, &InvokeError{
			Server:  server.Name,
			Tool:    tool,
			Failure: FailureTool,
			Payload: result.Fields(),
			Err:     fmt.Errorf("tool reported error: %s", result.String()),
		}
	}

	i.registry.RecordSuccess(server.Name)
	return result, nil
}

// CheckHealth performs a handshake-only probe against a named server.
// It never returns an error; the result is recorded in the registry.
func (i *Invoker) CheckHealth(ctx context.Context, serverName string) bool {
	server, err := i.registry.Server(serverName)
	if err != nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, i.healthTimeout)
	defer cancel()

	session, err := i.dial(probeCtx, server)
	if err != nil {
		i.registry.RecordFailure(server.Name, err)
		return false
	}
	defer session.Close()

	i.registry.RecordSuccess(server.Name)
	return true
}

// InitializeAll probes every configured server at startup, retrying each with
// exponential backoff, and refreshes advertised tool inventories. It succeeds
// if at least one server is reachable; unreachable servers are only logged
// since the invoker retries lazily on first real use. It returns
// ErrAllServersUnavailable when every server fails.
func (i *Invoker) InitializeAll(ctx context.Context) error {
	names := i.registry.Names()
	if len(names) == 0 {
		return errors.New("no tool servers configured")
	}

	reachable := 0
	for _, name := range names {
		if i.initializeServer(ctx, name) {
			reachable++
		}
	}

	if reachable == 0 {
		return ErrAllServersUnavailable
	}

	i.logger.Info(
		"tool servers initialized",
		"reachable", reachable,
		"configured", len(names),
	)
	return nil
}

func (i *Invoker) initializeServer(ctx context.Context, name string) bool {
	server, err := i.registry.Server(name)
	if err != nil {
		return false
	}

	backoff := newBackoff()
	for attempt := 1; attempt <= i.startupRetries; attempt++ {
		if ok := i.probe(ctx, server); ok {
			return true
		}
		if attempt < i.startupRetries {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff.next()):
			}
		}
	}

	i.logger.Warn(
		"tool server unreachable at startup",
		"server", name,
		"address", server.Address,
		"attempts", i.startupRetries,
	)
	return false
}

func (i *Invoker) probe(ctx context.Context, server ServerConfig) bool {
	probeCtx, cancel := context.WithTimeout(ctx, i.healthTimeout)
	defer cancel()

	session, err := i.dial(probeCtx, server)
	if err != nil {
		i.registry.RecordFailure(server.Name, err)
		return false
	}
	defer session.Close()

	if tools, err := session.ListTools(probeCtx); err == nil {
		i.registry.SetAvailableTools(server.Name, tools)
	}

	i.registry.RecordSuccess(server.Name)
	return true
}

// classifyCallFailure maps a call error to a failure layer. A deadline on an
// in-flight call means the session may simply be slow, not broken, so
// timeouts are tool failures.
func classifyCallFailure(err error) Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTool
	}
	return FailureConnection
}
