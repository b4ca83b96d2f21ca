// README: Simulation handlers: launch, inspect, list results and stream them over a websocket.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/report"
	"carpool/internal/modules/simulation"
)

const (
	maxScenarioBytes = 1 << 20
	streamBuffer     = 256
	writeWait        = 5 * time.Second
)

// Simulations is the part of simulation.Manager the API needs.
type Simulations interface {
	Start(sc simulation.Scenario) (simulation.Simulation, error)
	Get(id string) (simulation.Simulation, error)
	List() []simulation.Simulation
	Results(ctx context.Context, id string) ([]report.Result, error)
	Subscribe(id string, buffer int) (<-chan report.Result, func(), error)
	Stop(id string) error
}

type SimulationHandler struct {
	sims     Simulations
	defaults simulation.Scenario
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewSimulationHandler decodes posted scenarios over defaults.
func NewSimulationHandler(sims Simulations, defaults simulation.Scenario, log *slog.Logger) *SimulationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SimulationHandler{
		sims:     sims,
		defaults: defaults,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Create accepts a scenario as YAML or JSON. An empty body runs the defaults.
func (h *SimulationHandler) Create(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxScenarioBytes))
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	sc, err := simulation.DecodeScenario(body, h.defaults)
	if err != nil {
		writeSimulationError(c, err)
		return
	}
	sim, err := h.sims.Start(sc)
	if err != nil {
		writeSimulationError(c, err)
		return
	}
	h.log.Info("simulation launched", "simulation", sim.ID, "caller", middleware.CallerUID(c),
		"drivers", sim.Drivers, "riders", sim.Riders)
	writeJSON(c, http.StatusCreated, sim)
}

func (h *SimulationHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"simulations": h.sims.List()})
}

func (h *SimulationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid simulation id")
		return
	}
	sim, err := h.sims.Get(id)
	if err != nil {
		writeSimulationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sim)
}

func (h *SimulationHandler) Results(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid simulation id")
		return
	}
	results, err := h.sims.Results(c.Request.Context(), id)
	if err != nil {
		writeSimulationError(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := results[:0:0]
		for _, r := range results {
			if string(r.Status) == status {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	writeJSON(c, http.StatusOK, gin.H{
		"simulation_id": id,
		"results":       results,
		"summary":       report.Summarize(results),
	})
}

func (h *SimulationHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid simulation id")
		return
	}
	if err := h.sims.Stop(id); err != nil {
		writeSimulationError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type streamMessage struct {
	Type       string                 `json:"type"`
	Result     *report.Result         `json:"result,omitempty"`
	Simulation *simulation.Simulation `json:"simulation,omitempty"`
}

// Stream pushes every result reported after the connection opens, then the
// final simulation state, then closes.
func (h *SimulationHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid simulation id")
		return
	}
	ch, cancel, err := h.sims.Subscribe(id, streamBuffer)
	if err != nil {
		writeSimulationError(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "simulation", id, "err", err)
		return
	}
	defer conn.Close()

	// the reader only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m streamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m)
	}
	for {
		select {
		case <-gone:
			return
		case r, ok := <-ch:
			if !ok {
				if sim, err := h.sims.Get(id); err == nil {
					_ = send(streamMessage{Type: "finished", Simulation: &sim})
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finished"), time.Now().Add(time.Second))
				return
			}
			if err := send(streamMessage{Type: "result", Result: &r}); err != nil {
				h.log.Debug("stream client dropped", "simulation", id, "err", err)
				return
			}
		}
	}
}
