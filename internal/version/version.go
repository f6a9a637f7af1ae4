package version

import "sync"

// Gateway is the version of the gateway binary, overridable at build time
// via -ldflags "-X .../internal/version.Gateway=v1.2.3".
var Gateway = "dev"

// registry maps component name to version string.
var (
	mu       sync.RWMutex
	registry = map[string]string{}
)

// Register records a component version. Later registrations replace earlier ones.
func Register(component, version string) {
	mu.Lock()
	registry[component] = version
	mu.Unlock()
}

// All returns a copy of the full component→version map, including the gateway itself.
func All() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(registry)+1)
	out["gateway"] = Gateway
	for k, v := range registry {
		out[k] = v
	}
	return out
}
