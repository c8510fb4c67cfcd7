package depres

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/plexica/plexica/internal/manifest"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Installed is the resolver's view of one plugin already installed for the
// tenant performing the operation.
type Installed struct {
	Version string
	Enabled bool
}

// Resolver validates a manifest's dependency declarations against the set of
// plugins currently installed for a tenant.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// CheckCompatibility runs both dependency generations and the conflict
// check. installed maps plugin id to its installed state for the tenant.
func (r *Resolver) CheckCompatibility(m *manifest.Manifest, installed map[string]Installed) error {
	if err := r.checkAPIDeps(m, installed); err != nil {
		return err
	}
	if err := r.checkLegacyDeps(m, installed); err != nil {
		return err
	}
	return r.checkConflicts(m, installed)
}

// checkAPIDeps validates manifest-declared API dependencies: the target must
// be installed and its version must satisfy the declared semver range.
func (r *Resolver) checkAPIDeps(m *manifest.Manifest, installed map[string]Installed) error {
	for _, dep := range m.APIDeps {
		target, ok := installed[dep.PluginID]
		if !ok {
			return platformerrors.NewDependencyUnsatisfiedError(m.ID, dep.PluginID)
		}
		ok, err := satisfies(target.Version, dep.Range)
		if err != nil {
			return fmt.Errorf("dependency '%s' of plugin '%s': %w", dep.PluginID, m.ID, err)
		}
		if !ok {
			return platformerrors.NewDependencyVersionMismatchError(m.ID, dep.PluginID, dep.Range, target.Version)
		}
	}
	return nil
}

// checkLegacyDeps validates the older dependency form: the target must be
// installed and enabled, with optional version compatibility.
func (r *Resolver) checkLegacyDeps(m *manifest.Manifest, installed map[string]Installed) error {
	for _, dep := range m.Requires {
		target, ok := installed[dep.PluginID]
		if !ok || !target.Enabled {
			return platformerrors.NewDependencyUnsatisfiedError(m.ID, dep.PluginID)
		}
		if dep.Range == "" {
			continue
		}
		ok, err := satisfies(target.Version, dep.Range)
		if err != nil {
			return fmt.Errorf("dependency '%s' of plugin '%s': %w", dep.PluginID, m.ID, err)
		}
		if !ok {
			return platformerrors.NewDependencyVersionMismatchError(m.ID, dep.PluginID, dep.Range, target.Version)
		}
	}
	return nil
}

// checkConflicts rejects installation when a declared conflict is installed
// and enabled for the tenant.
func (r *Resolver) checkConflicts(m *manifest.Manifest, installed map[string]Installed) error {
	for _, conflicting := range m.Conflicts {
		if target, ok := installed[conflicting]; ok && target.Enabled {
			return platformerrors.NewDependencyConflictError(m.ID, conflicting)
		}
	}
	return nil
}

func satisfies(version, constraintExpr string) (bool, error) {
	constraint, err := semver.NewConstraint(constraintExpr)
	if err != nil {
		return false, fmt.Errorf("invalid version range '%s': %w", constraintExpr, err)
	}
	parsed, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid installed version '%s': %w", version, err)
	}
	return constraint.Check(parsed), nil
}
