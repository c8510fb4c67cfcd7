package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plexica/plexica/internal/lifecycle"
	"github.com/plexica/plexica/internal/manifest"
)

// PublicationStatus controls whether a plugin is visible and installable.
type PublicationStatus string

const (
	PublicationDraft     PublicationStatus = "draft"
	PublicationPublished PublicationStatus = "published"
	PublicationArchived  PublicationStatus = "archived"
)

// Plugin is the single global row per plugin id. LifecycleStatus is shared
// across all tenants; it is never deleted, only moved along the lifecycle
// table.
type Plugin struct {
	ID                string            `json:"id" gorm:"primaryKey;type:varchar(128)"`
	Name              string            `json:"name" gorm:"type:varchar(255)"`
	Version           string            `json:"version" gorm:"type:varchar(64);not null"`
	Manifest          manifest.Manifest `json:"manifest" gorm:"serializer:json"`
	PublicationStatus PublicationStatus `json:"publication_status" gorm:"type:varchar(32);not null;default:draft"`
	LifecycleStatus   lifecycle.Status  `json:"lifecycle_status" gorm:"type:varchar(32);not null;index"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Published reports whether the plugin is installable at all.
func (p *Plugin) Published() bool {
	return p.PublicationStatus == PublicationPublished
}

// TenantInstallation is the per-tenant record of one plugin installation.
// The (tenant_id, plugin_id) pair is unique; the database enforces it and
// the coordinator relies on that for install serialization.
type TenantInstallation struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID      string         `json:"tenant_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_tenant_plugin"`
	PluginID      string         `json:"plugin_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_tenant_plugin;index"`
	Enabled       bool           `json:"enabled" gorm:"not null;default:false"`
	Configuration map[string]any `json:"configuration" gorm:"serializer:json"`
	InstalledAt   time.Time      `json:"installed_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// BeforeCreate assigns the row id and installation timestamp.
func (i *TenantInstallation) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.InstalledAt.IsZero() {
		i.InstalledAt = time.Now().UTC()
	}
	return nil
}

// PermissionGrant is one tenant-scoped permission key registered for a
// plugin. The (tenant_id, key) pair is unique; a duplicate insert is how
// key conflicts are detected.
type PermissionGrant struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_tenant_permission"`
	Key       string    `json:"key" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenant_permission"`
	PluginID  string    `json:"plugin_id" gorm:"type:varchar(128);not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

// Tenant is one isolated customer unit. Schema provisioning happens outside
// this service; SchemaName points at the tenant's already-provisioned
// database schema for migration runs.
type Tenant struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(128)"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null"`
	SchemaName string    `json:"schema_name" gorm:"type:varchar(128);not null"`
	Active     bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at"`
}
