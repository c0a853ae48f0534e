package containerhost

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEngineUnavailable is returned when the container runtime cannot be
// reached or refuses an operation for resource exhaustion.
var ErrEngineUnavailable = errors.New("containerhost: engine unavailable")

// ErrTimeout is the TIMEOUT sentinel returned by StartAndWait when a
// container exceeds its wall-clock budget.
var ErrTimeout = errors.New("containerhost: execution timeout")

// BuildError carries the last lines of build output, enough to surface the
// real package-manager failure instead of a generic non-zero exit code.
type BuildError struct {
	Tag       string
	LastLines []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("containerhost: build of %s failed: %s", e.Tag, strings.Join(e.LastLines, " | "))
}

// newBuildError keeps at most the last n non-empty lines seen.
func newBuildError(tag string, lines []string, n int) *BuildError {
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return &BuildError{Tag: tag, LastLines: kept}
}
