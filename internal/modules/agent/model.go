// README: Collaborators shared by driver and rider actors.
package agent

import (
	"context"
	"log/slog"

	"carpool/internal/config"
	"carpool/internal/modules/directory"
	"carpool/internal/modules/itinerary"
	"carpool/internal/modules/report"
	"carpool/internal/modules/transport"
)

// Reporter receives each actor's single result notification.
type Reporter interface {
	Report(ctx context.Context, r report.Result)
}

// Deps wires an actor to the shared parts of a simulation. Routes and the
// directory are the only state shared between actors.
type Deps struct {
	Bus       *transport.Bus
	Directory directory.Directory
	Reporter  Reporter
	Routes    itinerary.RouteService
	Engine    *itinerary.Engine
	Config    config.NegotiationConfig
	Log       *slog.Logger
}
