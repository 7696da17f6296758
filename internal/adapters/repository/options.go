package repository

// Option applies a configuration option to the Postgres store.
type Option func(*Postgres)

// WithAutoMigrate toggles schema migration on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(p *Postgres) {
		p.autoMigrate = enabled
	}
}
