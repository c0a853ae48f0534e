package limits

// DefaultLimits returns the fixed resource floor every invocation container
// runs under, regardless of project or function: 128 MiB memory, 0.5 CPU
// core, no network namespace, read-only rootfs with a writable /tmp. This
// floor is not configurable per-function; see the engine's design notes for
// why a per-function override was rejected.
func DefaultLimits(projectID string) *ContainerLimits {
	return &ContainerLimits{
		MemoryBytes:     128 * 1024 * 1024,
		NanoCPUs:        500_000_000,
		PidsLimit:       64,
		NetworkDisabled: true,
		ReadOnlyRootfs:  true,
		ProjectID:       projectID,
	}
}

// CustomLimits builds a ContainerLimits from DefaultLimits with opts applied
// on top. Used by tests that need a smaller ceiling than the production
// floor.
func CustomLimits(projectID string, opts ...LimitOption) *ContainerLimits {
	l := DefaultLimits(projectID)
	for _, opt := range opts {
		opt(l)
	}
	return l
}
