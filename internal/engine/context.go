package engine

import (
	"log/slog"

	"github.com/routeworks/escort/run"
)

// Context is the accumulated run context handed to phase handlers. It exposes
// the run state read-only by convention (handlers record errors through the
// fan-out machinery, not by mutating state fields) plus a value bag for
// passing intermediate results between phases within a single process.
//
// The bag is not persisted: after a resume, handlers re-derive missing inputs
// from their tool servers.
type Context struct {
	engine *Engine
	state  *run.State
	values map[string]any
}

// State returns the run state for the executing run.
func (c *Context) State() *run.State {
	return c.state
}

// Logger returns the engine's run-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.engine.logger
}

// Get retrieves a value from the run's in-process bag.
func (c *Context) Get(key string) (any, bool) {
	if c.values == nil {
		return nil, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value in the run's in-process bag.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}
