// Package pgstore is a PostgreSQL host for the magic-link engine.
//
// A single [Store] scoped to one realm implements magiclink.UserDirectory,
// magiclink.ClientRegistry, magiclink.GroupDirectory and
// magiclink.UsedTokenStore on top of a pgx connection pool. [Migrate] creates
// the tables it needs.
//
// Single use is enforced by the primary key of magiclink_used_tokens: the
// marker insert uses ON CONFLICT DO NOTHING and only the caller whose insert
// affected a row wins.
package pgstore
