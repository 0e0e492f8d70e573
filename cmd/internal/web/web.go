// Package web serves the embedded demo client.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Handler returns the static file handler for the demo client.
// index.html is served at "/".
func Handler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// embed guarantees the subdirectory exists; fail loudly if it does not.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
