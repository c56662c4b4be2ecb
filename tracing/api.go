package tracing

// DefaultRegistry is the registry used by the package-level functions.
var DefaultRegistry = MakeRegistryBuilder().Build()

// BeginSession starts a session on the DefaultRegistry.
func BeginSession() error {
	return DefaultRegistry.BeginSession()
}

// EndSession finishes the session of the DefaultRegistry.
func EndSession() (Artifact, error) {
	return DefaultRegistry.EndSession()
}

// IsProfiling tells whether the DefaultRegistry has a running session.
func IsProfiling() bool {
	return DefaultRegistry.IsProfiling()
}

// Current returns the profiler of the calling goroutine in the
// DefaultRegistry.
func Current() Profiler {
	return DefaultRegistry.Current()
}

// Measure runs fn inside a measurement block of the DefaultRegistry.
func Measure(name string, fn func(p Profiler), opts ...MeasurementOption) {
	DefaultRegistry.Measure(name, fn, opts...)
}

// Measure runs fn inside a measurement block named name. Measurements that fn
// leaves open are closed when it returns, even if it panics.
func (r *Registry) Measure(
	name string,
	fn func(p Profiler),
	opts ...MeasurementOption,
) {
	p := r.Current().Retain()
	defer p.Release()

	p.Begin(name, opts...)
	fn(p)
}
