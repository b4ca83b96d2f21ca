// README: Identifiers and roles shared across modules.
package types

import "fmt"

// ID names an actor (driver or rider). IDs are issued once, at spawn time.
type ID string

type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)

// DriverID and RiderID issue the arena handles used by a simulation run.
func DriverID(n int) ID { return ID(fmt.Sprintf("driver-%d", n)) }

func RiderID(n int) ID { return ID(fmt.Sprintf("rider-%d", n)) }
