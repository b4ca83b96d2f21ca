// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/infra"
	"carpool/internal/modules/simulation"
)

func NewRouter(simulations handlers.Simulations, defaults simulation.Scenario, verifier infra.TokenVerifier, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(verifier))
	simHandler := handlers.NewSimulationHandler(simulations, defaults, log)
	api.POST("/simulations", simHandler.Create)
	api.GET("/simulations", simHandler.List)
	api.GET("/simulations/:id", simHandler.Get)
	api.GET("/simulations/:id/results", simHandler.Results)
	api.GET("/simulations/:id/stream", simHandler.Stream)
	api.POST("/simulations/:id/stop", simHandler.Stop)

	return r
}
