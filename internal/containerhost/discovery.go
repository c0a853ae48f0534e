package containerhost

import (
	"fmt"
	"os"
	"path/filepath"
)

// discoverHost resolves the docker endpoint to use, trying in order: an
// explicit override, Docker Desktop's well-known per-user socket path, and
// finally the engine's own default resolution (DOCKER_HOST or the system
// socket), which is left to the docker CLI itself by returning "".
func discoverHost(override string) string {
	if override != "" {
		return override
	}

	if home, err := os.UserHomeDir(); err == nil {
		desktopSocket := filepath.Join(home, ".docker", "run", "docker.sock")
		if info, err := os.Stat(desktopSocket); err == nil && !info.IsDir() {
			return "unix://" + desktopSocket
		}
	}

	return ""
}

func dockerHostEnv(host string) []string {
	if host == "" {
		return nil
	}
	return []string{fmt.Sprintf("DOCKER_HOST=%s", host)}
}
