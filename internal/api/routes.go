package api

import (
	"net/http"

	"github.com/routeworks/escort/internal/pipeline"
	"github.com/routeworks/escort/internal/tools"
	"github.com/routeworks/escort/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	routes.Register(
		mux,
		pipeline.NewHandler(domain.Pipeline, runtime.Logger).Routes(),
		domain.Runs.Handler().Routes(),
		tools.NewHandler(runtime.Invoker, runtime.Logger).Routes(),
	)
}
