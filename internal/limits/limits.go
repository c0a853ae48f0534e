// Package limits defines the fixed resource ceiling applied to every
// invocation container. Unlike the in-process capability model it
// replaces, isolation here is enforced entirely by the container runtime
// (cgroups, network namespace, mount flags) rather than by checks inside
// the executing code.
package limits

// ContainerLimits describes the resource ceiling passed to the container
// runtime when creating an invocation container.
type ContainerLimits struct {
	MemoryBytes     int64 // cgroup memory limit
	NanoCPUs        int64 // CPU quota in units of 1e-9 CPUs
	PidsLimit       int64 // max live processes inside the container (0 = runtime default)
	NetworkDisabled bool  // container gets no network namespace
	ReadOnlyRootfs  bool  // rootfs is read-only except for /tmp

	// ProjectID identifies which project's function these limits apply to,
	// carried through for logging and metrics labeling.
	ProjectID string
}

// LimitOption mutates a ContainerLimits during construction.
type LimitOption func(*ContainerLimits)

// WithMemoryBytes overrides the memory ceiling.
func WithMemoryBytes(n int64) LimitOption {
	return func(l *ContainerLimits) { l.MemoryBytes = n }
}

// WithNanoCPUs overrides the CPU quota.
func WithNanoCPUs(n int64) LimitOption {
	return func(l *ContainerLimits) { l.NanoCPUs = n }
}

// WithPidsLimit overrides the live-process ceiling.
func WithPidsLimit(n int64) LimitOption {
	return func(l *ContainerLimits) { l.PidsLimit = n }
}

// Validate reports whether l describes a usable set of limits.
func (l *ContainerLimits) Validate() error {
	if l.MemoryBytes <= 0 {
		return ErrInvalidMemoryLimit
	}
	if l.NanoCPUs <= 0 {
		return ErrInvalidCPULimit
	}
	if l.PidsLimit < 0 {
		return ErrInvalidPidsLimit
	}
	return nil
}
