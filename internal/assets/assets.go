// Package assets embeds the static files of the document shell and serves
// them under content-fingerprinted URLs.
package assets

import (
	"embed"
	"io/fs"
)

// Logical names of the static assets the document shell links to.
const (
	Favicon            = "favicon.svg"
	FontStylesheet     = "styles/font.css"
	TailwindStylesheet = "styles/tailwind.css"
	GlobalStylesheet   = "styles/global.css"
)

//go:embed static
var static embed.FS

// Embedded returns the assets compiled into the binary, rooted so that the
// logical names above resolve directly.
func Embedded() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// the directory is embedded above, so it's always there
		panic(err)
	}
	return sub
}
