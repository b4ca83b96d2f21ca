// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carpool/internal/modules/simulation"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID ensures simulation IDs look like the UUIDs the manager issues.
func isValidID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeSimulationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, simulation.ErrBadScenario):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, simulation.ErrNotFound):
		writeError(c, http.StatusNotFound, "simulation not found")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
