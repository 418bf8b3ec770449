// Package web embeds the HTML templates and static assets. A directory on
// disk with the same layout can replace them during development.
package web

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed templates static
var content embed.FS

// Templates returns the template tree, from dir when set.
func Templates(dir string) (fs.FS, error) {
	return sub(dir, "templates")
}

// Static returns the static asset tree, from dir when set.
func Static(dir string) (fs.FS, error) {
	return sub(dir, "static")
}

func sub(dir, name string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(filepath.Join(dir, name)), nil
	}
	return fs.Sub(content, name)
}
