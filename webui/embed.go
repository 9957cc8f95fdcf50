// Package webui embeds the built dashboard assets and the browser companion
// script served alongside them.
package webui

import (
	"embed"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// DistFS returns the embedded assets rooted at the dist directory.
func DistFS() (fs.FS, error) {
	return fs.Sub(dist, "dist")
}
