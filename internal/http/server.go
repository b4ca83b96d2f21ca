// README: API gateway; owns the HTTP dependencies and builds the gin engine.
package http

import (
	"log/slog"
	"net/http"

	"carpool/internal/http/handlers"
	"carpool/internal/infra"
	"carpool/internal/modules/simulation"
)

type ServerDeps struct {
	Simulations handlers.Simulations
	// Defaults fill whatever a posted scenario leaves out.
	Defaults simulation.Scenario
	// Verifier may be nil, which disables authentication.
	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

type Server struct {
	simulations handlers.Simulations
	defaults    simulation.Scenario
	verifier    infra.TokenVerifier
	log         *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		simulations: deps.Simulations,
		defaults:    deps.Defaults,
		verifier:    deps.Verifier,
		log:         log,
	}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.simulations, s.defaults, s.verifier, s.log)
}
