package errors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable identifier carried by every platform
// error. Codes are part of the API surface and must not change between
// releases.
type Code string

const (
	CodeValidationFailed          Code = "VALIDATION_FAILED"
	CodeIllegalTransition         Code = "ILLEGAL_TRANSITION"
	CodeAlreadyInstalled          Code = "ALREADY_INSTALLED"
	CodePermissionKeyConflict     Code = "PERMISSION_KEY_CONFLICT"
	CodePluginNotFound            Code = "PLUGIN_NOT_FOUND"
	CodeInstallationNotFound      Code = "INSTALLATION_NOT_FOUND"
	CodeNotPublished              Code = "NOT_PUBLISHED"
	CodeNotGloballyActive         Code = "NOT_GLOBALLY_ACTIVE"
	CodeAlreadyInState            Code = "ALREADY_IN_STATE"
	CodeDependencyUnsatisfied     Code = "DEPENDENCY_UNSATISFIED"
	CodeDependencyVersionMismatch Code = "DEPENDENCY_VERSION_MISMATCH"
	CodeDependencyConflict        Code = "DEPENDENCY_CONFLICT"
	CodeContainerHealthTimeout    Code = "CONTAINER_HEALTH_TIMEOUT"
	CodeContainerUnreachable      Code = "CONTAINER_UNREACHABLE"
	CodeMigrationFailed           Code = "MIGRATION_FAILED"
)

// Coded is implemented by every error in this package. The API layer maps
// codes to transport-level responses without inspecting error text.
type Coded interface {
	error
	ErrorCode() Code
}

// CodeOf extracts the stable code from err, unwrapping as needed. Returns an
// empty Code when err carries none.
func CodeOf(err error) Code {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ValidationError captures a bad configuration shape, type or pattern.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError for the given field.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) ErrorCode() Code { return CodeValidationFailed }

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// IllegalTransitionError reports a lifecycle state machine violation.
type IllegalTransitionError struct {
	PluginID string
	From     string
	To       string
}

// NewIllegalTransitionError constructs an IllegalTransitionError.
func NewIllegalTransitionError(pluginID, from, to string) error {
	return &IllegalTransitionError{PluginID: pluginID, From: from, To: to}
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal lifecycle transition for plugin '%s': %s -> %s", e.PluginID, e.From, e.To)
}

func (e *IllegalTransitionError) ErrorCode() Code { return CodeIllegalTransition }

// ConflictError reports that a uniqueness guarantee was violated, either the
// (tenant, plugin) installation key or a permission key.
type ConflictError struct {
	Conflict Code
	TenantID string
	PluginID string
	Detail   string
}

// NewAlreadyInstalledError constructs the conflict returned when an
// installation row already exists for the pair.
func NewAlreadyInstalledError(tenantID, pluginID string) error {
	return &ConflictError{
		Conflict: CodeAlreadyInstalled,
		TenantID: tenantID,
		PluginID: pluginID,
		Detail:   "plugin is already installed for this tenant",
	}
}

// NewPermissionKeyConflictError constructs the conflict returned when the
// permission registrar rejects a duplicate key.
func NewPermissionKeyConflictError(tenantID, pluginID, key string) error {
	return &ConflictError{
		Conflict: CodePermissionKeyConflict,
		TenantID: tenantID,
		PluginID: pluginID,
		Detail:   fmt.Sprintf("permission key '%s' is already registered", key),
	}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict [%s] for tenant '%s' plugin '%s': %s", e.Conflict, e.TenantID, e.PluginID, e.Detail)
}

func (e *ConflictError) ErrorCode() Code { return e.Conflict }

// NotFoundError reports a missing plugin or installation.
type NotFoundError struct {
	Kind     Code
	PluginID string
	TenantID string
}

// NewPluginNotFoundError constructs a NotFoundError for a plugin id.
func NewPluginNotFoundError(pluginID string) error {
	return &NotFoundError{Kind: CodePluginNotFound, PluginID: pluginID}
}

// NewInstallationNotFoundError constructs a NotFoundError for a
// (tenant, plugin) installation pair.
func NewInstallationNotFoundError(tenantID, pluginID string) error {
	return &NotFoundError{Kind: CodeInstallationNotFound, PluginID: pluginID, TenantID: tenantID}
}

func (e *NotFoundError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("installation of plugin '%s' for tenant '%s' not found", e.PluginID, e.TenantID)
	}
	return fmt.Sprintf("plugin '%s' not found", e.PluginID)
}

func (e *NotFoundError) ErrorCode() Code { return e.Kind }

// StateError reports a precondition on the current lifecycle or row state
// that the operation requires but found violated.
type StateError struct {
	Kind     Code
	PluginID string
	Message  string
}

// NewNotPublishedError is returned when installing an unpublished plugin.
func NewNotPublishedError(pluginID string) error {
	return &StateError{Kind: CodeNotPublished, PluginID: pluginID, Message: "plugin is not published"}
}

// NewNotGloballyActiveError is returned by tenant-level enable when the
// plugin's global lifecycle status is not ACTIVE.
func NewNotGloballyActiveError(pluginID, status string) error {
	return &StateError{
		Kind:     CodeNotGloballyActive,
		PluginID: pluginID,
		Message:  fmt.Sprintf("plugin is not globally active (status: %s)", status),
	}
}

// NewAlreadyInStateError is returned when a toggle targets the state the row
// is already in.
func NewAlreadyInStateError(pluginID, state string) error {
	return &StateError{
		Kind:     CodeAlreadyInState,
		PluginID: pluginID,
		Message:  fmt.Sprintf("installation is already %s", state),
	}
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin '%s': %s", e.PluginID, e.Message)
}

func (e *StateError) ErrorCode() Code { return e.Kind }

// DependencyError reports a missing, version-incompatible or conflicting
// plugin dependency.
type DependencyError struct {
	Kind       Code
	PluginID   string
	Dependency string
	Message    string
}

// NewDependencyUnsatisfiedError constructs the error for an absent required
// dependency.
func NewDependencyUnsatisfiedError(pluginID, dependency string) error {
	return &DependencyError{
		Kind:       CodeDependencyUnsatisfied,
		PluginID:   pluginID,
		Dependency: dependency,
		Message:    "required dependency is not installed",
	}
}

// NewDependencyVersionMismatchError constructs the error for a present
// dependency whose installed version falls outside the declared range.
func NewDependencyVersionMismatchError(pluginID, dependency, constraint, actual string) error {
	return &DependencyError{
		Kind:       CodeDependencyVersionMismatch,
		PluginID:   pluginID,
		Dependency: dependency,
		Message:    fmt.Sprintf("installed version %s does not satisfy required range %s", actual, constraint),
	}
}

// NewDependencyConflictError constructs the error for a declared conflict
// that is installed and enabled.
func NewDependencyConflictError(pluginID, conflicting string) error {
	return &DependencyError{
		Kind:       CodeDependencyConflict,
		PluginID:   pluginID,
		Dependency: conflicting,
		Message:    "conflicting plugin is installed and enabled",
	}
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency error for plugin '%s' on '%s': %s", e.PluginID, e.Dependency, e.Message)
}

func (e *DependencyError) ErrorCode() Code { return e.Kind }

// ContainerError reports a runtime failure while starting, stopping or
// health-checking a plugin container.
type ContainerError struct {
	Kind     Code
	PluginID string
	Message  string
	Err      error
}

// NewContainerHealthTimeoutError is returned when a started container never
// reported healthy before the poll deadline.
func NewContainerHealthTimeoutError(pluginID string) error {
	return &ContainerError{
		Kind:     CodeContainerHealthTimeout,
		PluginID: pluginID,
		Message:  "container did not become healthy before the deadline",
	}
}

// NewContainerUnreachableError wraps a transport-level runtime failure.
func NewContainerUnreachableError(pluginID string, err error) error {
	return &ContainerError{
		Kind:     CodeContainerUnreachable,
		PluginID: pluginID,
		Message:  "container runtime is unreachable",
		Err:      err,
	}
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("container error for plugin '%s': %s", e.PluginID, e.Message)
}

func (e *ContainerError) ErrorCode() Code { return e.Kind }

// Unwrap exposes the underlying runtime error.
func (e *ContainerError) Unwrap() error { return e.Err }

// MigrationError reports that schema migrations failed for every tenant,
// which the coordinator treats as catastrophic and compensates.
type MigrationError struct {
	PluginID string
	Tenants  int
}

// NewMigrationError constructs a MigrationError covering the given number of
// failed tenants.
func NewMigrationError(pluginID string, tenants int) error {
	return &MigrationError{PluginID: pluginID, Tenants: tenants}
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrations for plugin '%s' failed for all %d tenants", e.PluginID, e.Tenants)
}

func (e *MigrationError) ErrorCode() Code { return CodeMigrationFailed }
