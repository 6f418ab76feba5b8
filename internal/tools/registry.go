package tools

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// ServerState is a snapshot of one server's connection health. Entries are
// created at registry construction and live for the process lifetime.
type ServerState struct {
	Name                string    `json:"name"`
	Address             string    `json:"address"`
	Connected           bool      `json:"connected"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	AvailableTools      []string  `json:"available_tools"`
	LastChecked         time.Time `json:"last_checked,omitempty"`
}

// Registry holds the static tool server topology and mutable per-server
// connection state. State is mutated only through the invoker's record
// methods; each field update is independently consistent, so a single mutex
// suffices for concurrent calls.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*serverEntry
	routes  map[string]string
}

type serverEntry struct {
	config ServerConfig
	state  ServerState
}

// NewRegistry builds a Registry and its tool routing table from config.
// Config validation guarantees unique server names and tool ownership.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{
		servers: make(map[string]*serverEntry, len(cfg.Servers)),
		routes:  make(map[string]string),
	}

	for _, sc := range cfg.Servers {
		r.servers[sc.Name] = &serverEntry{
			config: sc,
			state: ServerState{
				Name:           sc.Name,
				Address:        sc.Address,
				AvailableTools: slices.Clone(sc.Tools),
			},
		}
		for _, tool := range sc.Tools {
			r.routes[tool] = sc.Name
		}
	}

	return r
}

// Route resolves a tool name to its owning server's config.
func (r *Registry) Route(tool string) (ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.routes[tool]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	return r.servers[name].config, nil
}

// Server returns the config for a named server.
func (r *Registry) Server(name string) (ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("unknown server: %s", name)
	}
	return entry.config, nil
}

// Names returns all configured server names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RecordSuccess marks a server healthy and resets its failure count.
func (r *Registry) RecordSuccess(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return
	}
	entry.state.Connected = true
	entry.state.ConsecutiveFailures = 0
	entry.state.LastError = ""
	entry.state.LastChecked = time.Now().UTC()
}

// RecordFailure marks a server unhealthy and increments its failure count.
func (r *Registry) RecordFailure(server string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return
	}
	entry.state.Connected = false
	entry.state.ConsecutiveFailures++
	if err != nil {
		entry.state.LastError = err.Error()
	}
	entry.state.LastChecked = time.Now().UTC()
}

// SetAvailableTools replaces a server's advertised tool inventory, typically
// after a tools/list during startup initialization.
func (r *Registry) SetAvailableTools(server string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return
	}
	entry.state.AvailableTools = slices.Clone(tools)
}

// Snapshot returns a copy of every server's connection state, sorted by name.
func (r *Registry) Snapshot() []ServerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]ServerState, 0, len(r.servers))
	for _, entry := range r.servers {
		state := entry.state
		state.AvailableTools = slices.Clone(entry.state.AvailableTools)
		states = append(states, state)
	}
	slices.SortFunc(states, func(a, b ServerState) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return states
}
