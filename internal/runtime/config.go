package runtime

import (
	"fmt"

	"github.com/plexica/plexica/internal/manifest"
)

// BuildConfig derives a ContainerConfig from a manifest's runtime section.
// The manifest's env map is copied, and the platform injects the plugin id
// so containers can identify themselves to shared services.
func BuildConfig(m *manifest.Manifest) (ContainerConfig, error) {
	if !m.HasRuntime() {
		return ContainerConfig{}, fmt.Errorf("plugin '%s' declares no runtime image", m.ID)
	}

	env := make(map[string]string, len(m.Runtime.Env)+1)
	for key, value := range m.Runtime.Env {
		env[key] = value
	}
	env["PLEXICA_PLUGIN_ID"] = m.ID

	return ContainerConfig{
		Image:          m.Runtime.Image,
		Env:            env,
		Port:           m.Runtime.Port,
		HealthEndpoint: m.Runtime.HealthEndpoint,
		CPU:            m.Runtime.Resources.CPU,
		Memory:         m.Runtime.Resources.Memory,
	}, nil
}
