package journal

import "context"

// DBPool is the interface used to mock the database connection pool.
type DBPool = dbPool

// WithNewPool overrides the connection pool creation.
func WithNewPool(newPool func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(o *options) {
		o.newPool = newPool
	}
}
