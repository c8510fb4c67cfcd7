package lifecycle

import (
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Status is the single global lifecycle state of a plugin, shared across all
// tenants. It serializes exactly as the seven names below.
type Status string

const (
	StatusRegistered   Status = "REGISTERED"
	StatusInstalling   Status = "INSTALLING"
	StatusInstalled    Status = "INSTALLED"
	StatusActive       Status = "ACTIVE"
	StatusDisabled     Status = "DISABLED"
	StatusUninstalling Status = "UNINSTALLING"
	StatusUninstalled  Status = "UNINSTALLED"
)

// String returns the canonical serialized form.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the seven known states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// transitions is the adjacency list of legal lifecycle edges. The INSTALLING
// and UNINSTALLING back-edges to REGISTERED/INSTALLED exist for compensation
// after failed side effects.
var transitions = map[Status]map[Status]bool{
	StatusRegistered: {
		StatusInstalling: true,
	},
	StatusInstalling: {
		StatusInstalled:  true,
		StatusRegistered: true,
	},
	StatusInstalled: {
		StatusActive:       true,
		StatusUninstalling: true,
	},
	StatusActive: {
		StatusDisabled: true,
	},
	StatusDisabled: {
		StatusActive:       true,
		StatusUninstalling: true,
	},
	StatusUninstalling: {
		StatusUninstalled: true,
		StatusRegistered:  true,
		StatusInstalled:   true,
	},
	StatusUninstalled: {
		StatusRegistered: true,
	},
}

// CanTransition reports whether the edge current -> target exists in the
// lifecycle table. It is a pure function; callers must re-read the current
// status inside the transaction that writes the new one.
func CanTransition(current, target Status) bool {
	allowed, ok := transitions[current][target]
	return ok && allowed
}

// CheckTransition returns an IllegalTransitionError when the edge
// current -> target is not legal for the given plugin.
func CheckTransition(pluginID string, current, target Status) error {
	if !CanTransition(current, target) {
		return platformerrors.NewIllegalTransitionError(pluginID, current.String(), target.String())
	}
	return nil
}
