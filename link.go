package docshell

import (
	"context"
	"slices"
)

// Link describes a single <link> element in the document head. Links are
// plain data: templates render them, so html/template escapes and sanitizes
// every attribute, e.g.
//
//	<link rel="{{ .Rel }}" href="{{ .Href }}"{{ with .Type }} type="{{ . }}"{{ end }}>
//
// Links are values; once built they're never modified, only rendered.
type Link struct {
	// Rel is the relationship of the linked resource to the document,
	// e.g. "icon" or "stylesheet".
	Rel string

	// Href is the URL of the linked resource. A Link with an empty Href
	// is never rendered.
	Href string

	// Type is the optional MIME type of the linked resource, e.g.
	// "image/svg+xml".
	Type string
}

// Stylesheet returns a Link to the stylesheet at href.
func Stylesheet(href string) Link {
	return Link{Rel: "stylesheet", Href: href}
}

// Equal reports whether l and other would render the same element.
func (l Link) Equal(other Link) bool {
	return l.Rel == other.Rel && l.Href == other.Href && l.Type == other.Type
}

// LinkLister is an interface that Components can fulfill to include <link>
// elements in the document head. The contents will be made available to the
// template as .Links.
type LinkLister interface {
	// Links returns the Links that should be rendered in the document
	// head, in the order they should be rendered.
	//
	// Components returned from UseComponents have their Links collected
	// separately; they don't need to be repeated here.
	Links(context.Context) []Link
}

func getComponentLinks(ctx context.Context, components []Component) []Link {
	var results []Link
	for _, comp := range components {
		lister, ok := comp.(LinkLister)
		if !ok {
			continue
		}
		for _, link := range lister.Links(ctx) {
			if link.Href == "" {
				logger(ctx).WarnContext(ctx, "dropping link without href", "component", typeName(comp), "rel", link.Rel)
				continue
			}
			if slices.ContainsFunc(results, link.Equal) {
				continue
			}
			results = append(results, link)
		}
	}
	return results
}
