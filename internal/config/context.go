package config

import "context"

type ctxKey struct{}

// WithContext returns a context carrying the loaded configuration.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the configuration stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(ctxKey{}).(*Config)
	return cfg
}

// MustFromContext is FromContext for paths where the root command has
// already loaded configuration.
func MustFromContext(ctx context.Context) *Config {
	cfg := FromContext(ctx)
	if cfg == nil {
		panic("config: not present in context")
	}
	return cfg
}
