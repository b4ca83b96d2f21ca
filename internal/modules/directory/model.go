// README: Directory contract used by actors to announce themselves and discover counterparties by role.
package directory

import (
	"context"
	"errors"

	"carpool/internal/types"
)

var ErrNotRegistered = errors.New("directory: actor not registered")

// Directory must make Register, Deregister and Find atomic with respect to
// each other. Find returns ids in ascending order.
type Directory interface {
	Register(ctx context.Context, id types.ID, role types.Role) error
	Deregister(ctx context.Context, id types.ID) error
	Find(ctx context.Context, role types.Role) ([]types.ID, error)
}
