// Package postgres is the durable tier of the engine: accounts, lockout
// records, refresh tokens, the token blacklist, sessions, wallet challenges
// and the audit log, all on one PostgreSQL database reached through the pgx
// database/sql driver.
//
// The schema ships as embedded goose migrations; run [Migrate] before the
// first [New].
//
//	db, err := postgres.Open(ctx, os.Getenv("DATABASE_URL"))
//	...
//	if err := postgres.Migrate(ctx, db); err != nil { ... }
//	stores := postgres.New(db, cfg.Stores.DBTimeout)
//	engine, err := stores.Attach(authcore.New().WithConfig(cfg)).Build()
package postgres
