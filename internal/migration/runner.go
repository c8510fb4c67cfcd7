package migration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/store"
)

// schemaPlaceholder is replaced with the tenant's schema name in every
// statement, keeping migrations tenant-isolated.
const schemaPlaceholder = "{{schema}}"

// Migration is one named batch of schema statements shipped by a plugin.
type Migration struct {
	Name       string
	Statements []string
}

// TenantResult is the outcome of applying a plugin's migrations for one
// tenant.
type TenantResult struct {
	TenantID string
	Err      error
}

// AllFailed reports whether every tenant in results failed. An empty result
// set is not a failure.
func AllFailed(results []TenantResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, result := range results {
		if result.Err == nil {
			return false
		}
	}
	return true
}

// Runner applies a plugin's per-tenant schema migrations. Each tenant is
// isolated; partial failure is reported per tenant, not raised.
type Runner interface {
	Run(ctx context.Context, pluginID string, migrations []Migration, tenants []store.Tenant) []TenantResult
}

// PooledRunner fans tenant migrations out on a shared worker pool and
// applies each tenant's batch inside its own transaction.
type PooledRunner struct {
	store *store.Store
	pool  *ants.Pool
	log   *logger.Logger
}

// NewPooledRunner creates a runner with the given worker pool size.
func NewPooledRunner(s *store.Store, workers int, log *logger.Logger) (*PooledRunner, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration worker pool: %w", err)
	}
	return &PooledRunner{store: s, pool: pool, log: log.WithComponent("migration-runner")}, nil
}

// Close releases the worker pool.
func (r *PooledRunner) Close() {
	r.pool.Release()
}

// Run applies migrations for every tenant concurrently and returns one
// result per tenant, in tenant order.
func (r *PooledRunner) Run(ctx context.Context, pluginID string, migrations []Migration, tenants []store.Tenant) []TenantResult {
	results := make([]TenantResult, len(tenants))
	var wg sync.WaitGroup

	for i, tenant := range tenants {
		i, tenant := i, tenant
		wg.Add(1)
		submitErr := r.pool.Submit(func() {
			defer wg.Done()
			err := r.runForTenant(ctx, pluginID, migrations, tenant)
			results[i] = TenantResult{TenantID: tenant.ID, Err: err}
		})
		if submitErr != nil {
			wg.Done()
			results[i] = TenantResult{TenantID: tenant.ID, Err: submitErr}
		}
	}
	wg.Wait()

	for _, result := range results {
		if result.Err != nil {
			r.log.WithFields(map[string]any{
				"plugin_id": pluginID,
				"tenant_id": result.TenantID,
			}).Error(result.Err, "tenant migration failed")
		}
	}
	return results
}

func (r *PooledRunner) runForTenant(ctx context.Context, pluginID string, migrations []Migration, tenant store.Tenant) error {
	return r.store.WithTx(ctx, func(tx *store.Store) error {
		for _, m := range migrations {
			for _, statement := range m.Statements {
				rendered := strings.ReplaceAll(statement, schemaPlaceholder, tenant.SchemaName)
				if err := tx.Exec(ctx, rendered); err != nil {
					return fmt.Errorf("migration '%s' of plugin '%s' failed: %w", m.Name, pluginID, err)
				}
			}
		}
		return nil
	})
}
