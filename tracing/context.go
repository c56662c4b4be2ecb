package tracing

import "context"

type registryKey struct{}

// WithRegistry attaches a registry to the context.
func WithRegistry(ctx context.Context, r *Registry) context.Context {
	if r == nil {
		r = DefaultRegistry
	}

	return context.WithValue(ctx, registryKey{}, r)
}

// RegistryFromContext returns the registry attached to the context, or the
// DefaultRegistry.
func RegistryFromContext(ctx context.Context) *Registry {
	if ctx == nil {
		return DefaultRegistry
	}

	if r, ok := ctx.Value(registryKey{}).(*Registry); ok {
		return r
	}

	return DefaultRegistry
}

// FromContext returns the profiler of the calling goroutine in the registry
// attached to the context. Profilers belong to goroutines, so only the
// registry travels with the context.
func FromContext(ctx context.Context) Profiler {
	return RegistryFromContext(ctx).Current()
}
