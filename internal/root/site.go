package root

import (
	"context"
	"io/fs"

	"impractical.co/docshell"
)

var _ docshell.ServerErrorPager = &Site{}

// Site renders the root document. It caches parsed templates, so a server
// should build one and share it between requests.
type Site struct {
	*docshell.CachedSite
}

// NewSite returns a Site rendering the templates in fsys, or the embedded
// templates if fsys is nil.
func NewSite(fsys fs.FS) *Site {
	if fsys == nil {
		fsys = Templates()
	}
	return &Site{CachedSite: docshell.NewCachedSite(fsys)}
}

// ServerErrorPage returns the page rendered when a Document fails.
func (*Site) ServerErrorPage(_ context.Context) docshell.Page {
	return ErrorPage{}
}
