package root

import (
	"impractical.co/docshell"
)

// AssetURLs are the resolved URLs of the static assets the document links to.
type AssetURLs struct {
	Favicon            string
	FontStylesheet     string
	TailwindStylesheet string

	// Bundle is the URL of the bundled stylesheet. It's empty when no
	// bundle was built.
	Bundle string
}

// Links returns the <link> descriptors for the document head: the favicon,
// then the font, utility and bundled stylesheets. When urls has no Bundle,
// the bundle link is left out rather than rendered with an empty href.
func Links(urls AssetURLs) []docshell.Link {
	links := []docshell.Link{
		{Rel: "icon", Href: urls.Favicon, Type: "image/svg+xml"},
		docshell.Stylesheet(urls.FontStylesheet),
		docshell.Stylesheet(urls.TailwindStylesheet),
	}
	if urls.Bundle != "" {
		links = append(links, docshell.Stylesheet(urls.Bundle))
	}
	return links
}
