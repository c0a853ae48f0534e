package containerhost

import (
	"archive/tar"
	"bytes"
	"testing"
)

func TestBuildContextTarBytesRoundTrip(t *testing.T) {
	bc := BuildContext{
		"Dockerfile":       []byte("FROM clowdy-python-runtime:latest\n"),
		"requirements.txt": []byte("requests==2.31.0\n"),
	}

	data, err := bc.TarBytes()
	if err != nil {
		t.Fatalf("TarBytes: %v", err)
	}

	tr := tar.NewReader(bytes.NewReader(data))
	found := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		var buf bytes.Buffer
		buf.ReadFrom(tr)
		found[hdr.Name] = buf.String()
	}

	if found["Dockerfile"] == "" || found["requirements.txt"] == "" {
		t.Errorf("expected both entries round-tripped through the tar archive, got %v", found)
	}
}

func TestParseExitCode(t *testing.T) {
	code, err := parseExitCode([]byte("0\n"))
	if err != nil || code != 0 {
		t.Errorf("expected exit code 0, got %d err=%v", code, err)
	}

	code, err = parseExitCode([]byte("137"))
	if err != nil || code != 137 {
		t.Errorf("expected exit code 137, got %d err=%v", code, err)
	}
}

func TestNewBuildErrorKeepsLastLinesOnly(t *testing.T) {
	lines := []string{"Step 1/4", "", "Step 2/4", "ERROR: could not find requests==99.0.0", "", "pip failed"}
	buildErr := newBuildError("clowdy-project-x-abc123def456", lines, 2)

	if len(buildErr.LastLines) != 2 {
		t.Fatalf("expected 2 retained lines, got %d: %v", len(buildErr.LastLines), buildErr.LastLines)
	}
	if buildErr.LastLines[1] != "pip failed" {
		t.Errorf("expected last retained line to be the final non-empty line, got %q", buildErr.LastLines[1])
	}
}

func TestDiscoverHostOverrideWins(t *testing.T) {
	if got := discoverHost("tcp://example:2375"); got != "tcp://example:2375" {
		t.Errorf("explicit override should win, got %q", got)
	}
}
