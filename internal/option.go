package internal

// runOptions collects the settings a Run invocation starts from.
type runOptions struct {
	config *Config
}

// Option configures a Run invocation.
type Option func(*runOptions)

// WithConfig supplies the emulator configuration.
func WithConfig(cfg *Config) Option {
	return func(o *runOptions) {
		o.config = cfg
	}
}
