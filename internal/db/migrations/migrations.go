// Package migrations embebe los archivos SQL de esquema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
