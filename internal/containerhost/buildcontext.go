package containerhost

import (
	"archive/tar"
	"bytes"
	"fmt"
)

// BuildContext is an in-memory set of (path, bytes) entries handed to
// docker build, never touching the host filesystem.
type BuildContext map[string][]byte

// TarBytes serializes the build context entries into a tar archive.
func (bc BuildContext) TarBytes() ([]byte, error) {
	return tarBytes(bc)
}

// TarArchive is an in-memory set of (path, bytes) entries injected into a
// stopped container via put_archive.
type TarArchive map[string][]byte

// TarBytes serializes the archive entries into a tar archive.
func (a TarArchive) TarBytes() ([]byte, error) {
	return tarBytes(a)
}

func tarBytes(entries map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for path, content := range entries {
		hdr := &tar.Header{
			Name: path,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("containerhost: writing tar header for %s: %w", path, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("containerhost: writing tar content for %s: %w", path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("containerhost: closing tar writer: %w", err)
	}
	return buf.Bytes(), nil
}
