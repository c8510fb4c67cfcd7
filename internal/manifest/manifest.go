package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	slugPattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	permissionPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._:-]*$`)
)

// FieldType enumerates the value types a manifest config field may declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// ConfigField declares one entry of a plugin's tenant configuration schema.
type ConfigField struct {
	Key      string    `yaml:"key" validate:"required"`
	Type     FieldType `yaml:"type" validate:"required,oneof=string number boolean object array"`
	Required bool      `yaml:"required"`
	Default  any       `yaml:"default,omitempty"`
	Pattern  string    `yaml:"pattern,omitempty"`
	Min      *float64  `yaml:"min,omitempty"`
	Max      *float64  `yaml:"max,omitempty"`
}

// APIDependency declares a dependency on another plugin's API with a semver
// range the installed version must satisfy.
type APIDependency struct {
	PluginID string `yaml:"plugin" validate:"required"`
	Range    string `yaml:"range" validate:"required"`
}

// LegacyDependency is the older dependency form: the target must be
// installed and enabled, with an optional semver range.
type LegacyDependency struct {
	PluginID string `yaml:"plugin" validate:"required"`
	Range    string `yaml:"range,omitempty"`
}

// Permission declares a permission key the plugin needs registered per
// tenant. Keys are namespaced by plugin id at registration time.
type Permission struct {
	Key         string `yaml:"key" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// Resources declares the runtime resource envelope for the container.
type Resources struct {
	CPU    string `yaml:"cpu,omitempty"`
	Memory string `yaml:"memory,omitempty"`
}

// Runtime describes how to run the plugin's container.
type Runtime struct {
	Image          string            `yaml:"image"`
	Env            map[string]string `yaml:"env,omitempty"`
	Port           int               `yaml:"port,omitempty"`
	HealthEndpoint string            `yaml:"health_endpoint,omitempty"`
	Resources      Resources         `yaml:"resources,omitempty"`
}

// Hooks names the lifecycle hooks a plugin wants invoked inside its
// container around install/activate events.
type Hooks struct {
	PostInstall  string `yaml:"post_install,omitempty"`
	PreUninstall string `yaml:"pre_uninstall,omitempty"`
	PostActivate string `yaml:"post_activate,omitempty"`
}

// Events lists the bus topics the plugin publishes and subscribes to.
type Events struct {
	Publishes  []string `yaml:"publishes,omitempty"`
	Subscribes []string `yaml:"subscribes,omitempty"`
}

// Frontend describes the module-federation remote entry a plugin exposes.
type Frontend struct {
	RemoteEntry string `yaml:"remote_entry,omitempty"`
	Scope       string `yaml:"scope,omitempty"`
}

// MigrationSpec is one named batch of tenant-schema statements the plugin
// ships. Statements use a `{{schema}}` placeholder resolved per tenant.
type MigrationSpec struct {
	Name       string   `yaml:"name" validate:"required"`
	Statements []string `yaml:"statements" validate:"required,min=1"`
}

// Service declares a backend service endpoint the plugin exposes for
// discovery by other plugins.
type Service struct {
	Name string `yaml:"name" validate:"required"`
	Path string `yaml:"path,omitempty"`
}

// Manifest is the full declaration a plugin author ships with a plugin.
type Manifest struct {
	ID           string             `yaml:"id" validate:"required"`
	Name         string             `yaml:"name,omitempty"`
	Version      string             `yaml:"version" validate:"required"`
	Description  string             `yaml:"description,omitempty"`
	ConfigFields []ConfigField      `yaml:"config_fields,omitempty" validate:"dive"`
	APIDeps      []APIDependency    `yaml:"api_dependencies,omitempty" validate:"dive"`
	Requires     []LegacyDependency `yaml:"requires,omitempty" validate:"dive"`
	Conflicts    []string           `yaml:"conflicts,omitempty"`
	Permissions  []Permission       `yaml:"permissions,omitempty" validate:"dive"`
	Runtime      Runtime            `yaml:"runtime,omitempty"`
	Hooks        Hooks              `yaml:"hooks,omitempty"`
	Events       Events             `yaml:"events,omitempty"`
	Frontend     Frontend           `yaml:"frontend,omitempty"`
	Services     []Service          `yaml:"services,omitempty" validate:"dive"`
	Migrations   []MigrationSpec    `yaml:"migrations,omitempty" validate:"dive"`
}

// Validate performs the semantic checks struct tags cannot express: slug
// shape, semver well-formedness, duplicate keys, parsable dependency ranges
// and safe validation patterns.
func (m *Manifest) Validate() error {
	if err := validateStruct(m); err != nil {
		return err
	}
	if !slugPattern.MatchString(m.ID) {
		return fmt.Errorf("manifest id '%s' is not a valid slug", m.ID)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("manifest '%s' has invalid version '%s': %w", m.ID, m.Version, err)
	}

	seenFields := map[string]struct{}{}
	for _, field := range m.ConfigFields {
		if _, dup := seenFields[field.Key]; dup {
			return fmt.Errorf("manifest '%s' declares config field '%s' more than once", m.ID, field.Key)
		}
		seenFields[field.Key] = struct{}{}

		if field.Pattern != "" {
			if field.Type != FieldString {
				return fmt.Errorf("manifest '%s' field '%s': pattern is only valid on string fields", m.ID, field.Key)
			}
			if err := ScreenPattern(field.Pattern); err != nil {
				return fmt.Errorf("manifest '%s' field '%s': %w", m.ID, field.Key, err)
			}
		}
		if (field.Min != nil || field.Max != nil) && field.Type != FieldNumber {
			return fmt.Errorf("manifest '%s' field '%s': min/max are only valid on number fields", m.ID, field.Key)
		}
		if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
			return fmt.Errorf("manifest '%s' field '%s': min exceeds max", m.ID, field.Key)
		}
	}

	seenDeps := map[string]struct{}{}
	for _, dep := range m.APIDeps {
		if dep.PluginID == m.ID {
			return fmt.Errorf("manifest '%s' cannot depend on itself", m.ID)
		}
		if _, dup := seenDeps[dep.PluginID]; dup {
			return fmt.Errorf("manifest '%s' declares dependency '%s' more than once", m.ID, dep.PluginID)
		}
		seenDeps[dep.PluginID] = struct{}{}
		if _, err := semver.NewConstraint(dep.Range); err != nil {
			return fmt.Errorf("manifest '%s' dependency '%s' has invalid range '%s': %w", m.ID, dep.PluginID, dep.Range, err)
		}
	}
	for _, dep := range m.Requires {
		if dep.PluginID == m.ID {
			return fmt.Errorf("manifest '%s' cannot depend on itself", m.ID)
		}
		if dep.Range != "" {
			if _, err := semver.NewConstraint(dep.Range); err != nil {
				return fmt.Errorf("manifest '%s' dependency '%s' has invalid range '%s': %w", m.ID, dep.PluginID, dep.Range, err)
			}
		}
	}
	for _, conflicting := range m.Conflicts {
		if conflicting == m.ID {
			return fmt.Errorf("manifest '%s' cannot conflict with itself", m.ID)
		}
	}

	seenPerms := map[string]struct{}{}
	for _, perm := range m.Permissions {
		if !permissionPattern.MatchString(perm.Key) {
			return fmt.Errorf("manifest '%s' declares invalid permission key '%s'", m.ID, perm.Key)
		}
		if _, dup := seenPerms[perm.Key]; dup {
			return fmt.Errorf("manifest '%s' declares permission '%s' more than once", m.ID, perm.Key)
		}
		seenPerms[perm.Key] = struct{}{}
	}

	return nil
}

// PermissionKeys returns the fully namespaced permission keys for this
// plugin, in declaration order.
func (m *Manifest) PermissionKeys() []string {
	keys := make([]string, 0, len(m.Permissions))
	for _, perm := range m.Permissions {
		keys = append(keys, m.ID+"."+strings.TrimSpace(perm.Key))
	}
	return keys
}

// HasRuntime reports whether the manifest declares a runnable container.
func (m *Manifest) HasRuntime() bool {
	return m.Runtime.Image != ""
}
