package engine

import (
	"bytes"
	"encoding/json"

	"github.com/clowdy-platform/engine/internal/store"
)

// parseOutput classifies a finished container run the way the bootstrap
// contract defines it: the engine never parses the user's return value
// itself, it only finds the last non-empty line of stdout and checks that
// it is valid JSON. Everything else - arity, exceptions, serialization - is
// the bootstrap script's job inside the container.
func parseOutput(stdout, stderr []byte, exitCode int, timedOut bool) (status store.Status, outputJSON string, success bool) {
	if timedOut {
		return store.StatusTimeout, `{"error":"execution timeout"}`, false
	}

	if exitCode != 0 {
		if line := lastNonEmptyLine(stderr); line != "" && json.Valid([]byte(line)) {
			return store.StatusError, line, false
		}
		return store.StatusError, genericErrorJSON(lastNonEmptyLine(stderr), stderr), false
	}

	line := lastNonEmptyLine(stdout)
	if line == "" || !json.Valid([]byte(line)) {
		return store.StatusError, genericErrorJSON(line, stderr), false
	}
	return store.StatusSuccess, line, true
}

// maxLoggedStderrBytes bounds how much stderr is echoed back in a failed
// invocation's recorded output.
const maxLoggedStderrBytes = 4096

func lastNonEmptyLine(b []byte) string {
	lines := bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := bytes.TrimSpace(lines[i])
		if len(trimmed) > 0 {
			return string(trimmed)
		}
	}
	return ""
}

// splitNonEmptyLines splits captured container output into its non-blank
// lines, in order, for forwarding to the log store.
func splitNonEmptyLines(b []byte) []string {
	var out []string
	for _, line := range bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			out = append(out, string(trimmed))
		}
	}
	return out
}

func genericErrorJSON(message string, stderr []byte) string {
	if message == "" {
		message = "function exited without producing a result"
	}
	out, err := json.Marshal(map[string]string{
		"error":     message,
		"traceback": "",
		"logs":      truncateStderr(stderr),
	})
	if err != nil {
		return `{"error":"failed to encode error"}`
	}
	return string(out)
}

// truncateStderr keeps the tail of stderr, the part most likely to hold the
// actual failure, up to maxLoggedStderrBytes.
func truncateStderr(stderr []byte) string {
	if len(stderr) <= maxLoggedStderrBytes {
		return string(stderr)
	}
	return string(stderr[len(stderr)-maxLoggedStderrBytes:])
}
