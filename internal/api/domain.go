package api

import (
	"github.com/routeworks/escort/internal/pipeline"
	"github.com/routeworks/escort/internal/runs"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Runs     runs.System
	Pipeline *pipeline.Service
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	runsSystem := runs.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
	)

	pipelineRuntime := &pipeline.Runtime{
		Invoker:     runtime.Invoker,
		Logger:      runtime.Logger,
		CallTimeout: runtime.CallTimeout,
	}

	pipelineService := pipeline.NewService(
		runtime.Lifecycle.Context(),
		pipelineRuntime,
		runtime.Progress,
		runsSystem,
		runtime.Logger,
		runtime.Concurrency,
	)

	return &Domain{
		Runs:     runsSystem,
		Pipeline: pipelineService,
	}
}
