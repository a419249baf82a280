package docshell

import (
	"context"
	"html/template"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Script describes a single <script> element placed at the script injection
// point of the document body. A Script is either linked, with Src set, or
// inline, with Inline set; if both are set, Src wins. Like Links, Scripts are
// rendered by templates.
type Script struct {
	// Src is the URL of a script to load.
	Src string

	// Inline is JavaScript, without <script> tags, to embed directly in
	// the document.
	Inline template.JS

	// Module marks the script as an ES module.
	Module bool

	// Defer and Async set the matching attributes on linked scripts.
	Defer bool
	Async bool
}

// key identifies a Script for deduplication: linked scripts by their URL,
// inline scripts by a checksum of their contents.
func (s Script) key() string {
	if s.Src != "" {
		return "src:" + s.Src
	}
	return "inline:" + strconv.FormatUint(xxhash.Sum64String(string(s.Inline)), 16)
}

// ScriptLister is an interface that Components can fulfill to include
// <script> elements at the script injection point of the document. The
// Scripts will be made available to the template as .Scripts.
type ScriptLister interface {
	// Scripts returns the Scripts that should be rendered, in the order
	// they should be rendered.
	//
	// Components returned from UseComponents have their Scripts collected
	// separately; they don't need to be repeated here.
	Scripts(context.Context) []Script
}

func getComponentScripts(ctx context.Context, components []Component) []Script {
	var results []Script
	seen := map[string]struct{}{}
	for _, comp := range components {
		lister, ok := comp.(ScriptLister)
		if !ok {
			continue
		}
		for _, script := range lister.Scripts(ctx) {
			if script.Src == "" && script.Inline == "" {
				continue
			}
			key := script.key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			results = append(results, script)
		}
	}
	return results
}
