// Package migrations embeds the agency schema migrations so the server
// binary can create and upgrade agency schemas without the source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
