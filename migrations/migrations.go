// Package migrations holds the versioned schema as golang-migrate
// up/down pairs.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
