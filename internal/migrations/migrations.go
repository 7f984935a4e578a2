package migrations

import "embed"

// Files holds the schema migrations, applied in lexical order by
// store.Migrate. Names follow NNN_description.sql.
//
//go:embed *.sql
var Files embed.FS
