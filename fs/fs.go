// Package appfs exposes the embedded static assets of the application.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
