// Package root is the root document of the shell: an <html> element whose
// head links the favicon and stylesheets, and whose body holds a greeting,
// the application's entry scripts and the development widgets.
package root

import (
	"context"
	"embed"
	"io/fs"

	"impractical.co/docshell"
	"impractical.co/docshell/internal/iframesync"
	"impractical.co/docshell/internal/livereload"
)

//go:embed templates
var templates embed.FS

// Templates returns the templates the root document and its error page are
// rendered from.
func Templates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

var (
	_ docshell.Page          = Document{}
	_ docshell.LinkLister    = Document{}
	_ docshell.ScriptLister  = Document{}
	_ docshell.ComponentUser = Document{}
)

// Document is the root document page.
type Document struct {
	// HeadLinks are rendered in the head, in order. Build them with
	// Links.
	HeadLinks []docshell.Link

	// EntryScripts are the URLs of the application's module scripts,
	// placed at the script injection point ahead of the widgets.
	EntryScripts []string

	// IFrameSync places the iframe synchronization widget when set.
	IFrameSync *iframesync.Widget

	// LiveReload places the live reload widget when set. Only set it in
	// development.
	LiveReload *livereload.Widget
}

func (Document) Templates(_ context.Context) []string {
	return []string{"document.html.tmpl"}
}

func (Document) Key(_ context.Context) string {
	return "document"
}

func (Document) ExecutedTemplate(_ context.Context) string {
	return "document.html.tmpl"
}

func (d Document) Links(_ context.Context) []docshell.Link {
	return d.HeadLinks
}

func (d Document) Scripts(_ context.Context) []docshell.Script {
	scripts := make([]docshell.Script, 0, len(d.EntryScripts))
	for _, src := range d.EntryScripts {
		scripts = append(scripts, docshell.Script{Src: src, Module: true})
	}
	return scripts
}

// UseComponents returns the widgets, iframe sync first, so their scripts
// follow the entry scripts in that order.
func (d Document) UseComponents(_ context.Context) []docshell.Component {
	var components []docshell.Component
	if d.IFrameSync != nil {
		components = append(components, *d.IFrameSync)
	}
	if d.LiveReload != nil {
		components = append(components, *d.LiveReload)
	}
	return components
}

// ErrorPage is rendered in place of a Document that failed to render.
type ErrorPage struct{}

func (ErrorPage) Templates(_ context.Context) []string {
	return []string{"error.html.tmpl"}
}

func (ErrorPage) Key(_ context.Context) string {
	return "error"
}

func (ErrorPage) ExecutedTemplate(_ context.Context) string {
	return "error.html.tmpl"
}
