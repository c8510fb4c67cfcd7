package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	platformerrors "github.com/plexica/plexica/pkg/errors"
)

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
database:
  driver: sqlite
  dsn: coordinator.db
`))
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "memory", cfg.Runtime.Backend)
	require.Equal(t, 30*time.Second, cfg.Health.Timeout)
	require.Equal(t, time.Second, cfg.Health.Interval)
	require.Equal(t, 4, cfg.Migration.Workers)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
database:
  driver: postgres
  dsn: host=localhost dbname=plexica
runtime:
  backend: noop
health:
  timeout: 5s
  interval: 250ms
migration:
  workers: 8
log:
  level: debug
  pretty: true
`))
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "noop", cfg.Runtime.Backend)
	require.Equal(t, 5*time.Second, cfg.Health.Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.Health.Interval)
	require.Equal(t, 8, cfg.Migration.Workers)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.Pretty)
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte(`
database:
  driver: mysql
  dsn: something
`))
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeValidationFailed))
}

func TestParseRejectsMissingDSN(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte(`
database:
  driver: sqlite
`))
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeValidationFailed))
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plexica.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: coordinator.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "coordinator.db", cfg.Database.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
