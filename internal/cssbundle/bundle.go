// Package cssbundle bundles the document's global stylesheets into a single
// fingerprinted file with esbuild.
package cssbundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"impractical.co/docshell/internal/assets"
)

// ErrNoEntries is returned when Build is called without any entry
// stylesheets.
var ErrNoEntries = errors.New("no stylesheets to bundle")

// DefaultPublicPath is where bundles are served when the Bundler doesn't say
// otherwise.
const DefaultPublicPath = "/build"

const namespace = "docshell-assets"

// Bundler builds a CSS bundle from stylesheets in an fs.FS. Stylesheets
// @import-ed by the entries are inlined; url() references and remote imports
// are left as they are.
type Bundler struct {
	// FS holds the stylesheets, with Entries relative to its root.
	FS fs.FS

	// Entries are the stylesheets to bundle, in order.
	Entries []string

	// Minify strips whitespace and shortens syntax in the output.
	Minify bool

	// PublicPath is the URL prefix the bundle is served under. Defaults
	// to DefaultPublicPath.
	PublicPath string
}

// Bundle is the output of a build.
type Bundle struct {
	// Href is the URL the bundle is served at. It changes whenever the
	// bundle's contents do.
	Href     string
	Contents []byte
	BuiltAt  time.Time

	// Hash is the xxhash of Contents; Href is derived from it.
	Hash uint64
}

// Build bundles the Bundler's entries into a single stylesheet.
func (b Bundler) Build(ctx context.Context) (*Bundle, error) {
	if len(b.Entries) == 0 {
		return nil, ErrNoEntries
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	publicPath := strings.TrimSuffix(b.PublicPath, "/")
	if publicPath == "" {
		publicPath = DefaultPublicPath
	}

	start := time.Now()
	entry := b.Entries[0]
	var stdin *api.StdinOptions
	entryPoints := []string{entry}
	if len(b.Entries) > 1 {
		// several entries are bundled through a synthetic stylesheet that
		// imports each of them in order
		var contents strings.Builder
		for _, e := range b.Entries {
			contents.WriteString("@import " + strconv.Quote(e) + ";\n")
		}
		entry = "bundle.css"
		entryPoints = nil
		stdin = &api.StdinOptions{
			Contents:   contents.String(),
			Sourcefile: entry,
			Loader:     api.LoaderCSS,
		}
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:      entryPoints,
		Stdin:            stdin,
		Bundle:           true,
		Write:            false,
		Outdir:           "/esbuild",
		EntryNames:       "[name]",
		LogLevel:         api.LogLevelSilent,
		MinifyWhitespace: b.Minify,
		MinifySyntax:     b.Minify,
		Plugins:          []api.Plugin{b.plugin()},
	})
	if l := len(result.Errors); l > 0 {
		texts := make([]string, l)
		for i, e := range result.Errors {
			texts[i] = e.Text
			if e.Location != nil {
				texts[i] = fmt.Sprintf("%s:%d: %s", e.Location.File, e.Location.Line, e.Text)
			}
		}
		return nil, fmt.Errorf("bundle %v: %s", b.Entries, strings.Join(texts, "\n"))
	}

	var contents []byte
	found := false
	for _, out := range result.OutputFiles {
		if strings.HasSuffix(out.Path, ".css") {
			contents = out.Contents
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("bundle %v: esbuild produced no stylesheet", b.Entries)
	}

	name := strings.TrimSuffix(path.Base(entry), path.Ext(entry))
	hash := xxhash.Sum64(contents)
	bundle := &Bundle{
		Href:     fmt.Sprintf("%s/%s-%016x.css", publicPath, name, hash),
		Contents: contents,
		Hash:     hash,
		BuiltAt:  time.Now(),
	}
	log.Debug().
		Strs("entries", b.Entries).
		Str("href", bundle.Href).
		Int("bytes", len(contents)).
		Dur("took", time.Since(start)).
		Msg("built css bundle")
	return bundle, nil
}

// plugin resolves and loads every stylesheet from the Bundler's FS, so
// nothing is read from disk behind its back.
func (b Bundler) plugin() api.Plugin {
	return api.Plugin{
		Name: "docshell-fs",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveCSSURLToken || isRemote(args.Path) {
						return api.OnResolveResult{External: true}, nil
					}
					p := args.Path
					if args.Importer != "" && args.Namespace == namespace && !strings.HasPrefix(p, "/") {
						p = path.Join(path.Dir(args.Importer), p)
					}
					p = strings.TrimPrefix(path.Clean(p), "/")
					if strings.HasPrefix(p, "../") {
						return api.OnResolveResult{}, fmt.Errorf("%q resolves outside the asset root", args.Path)
					}
					return api.OnResolveResult{Path: p, Namespace: namespace}, nil
				},
			)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: namespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					data, err := fs.ReadFile(b.FS, args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					contents := string(data)
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderCSS}, nil
				},
			)
		},
	}
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "data:")
}

// ServeHTTP serves the bundle at its Href. Any other path is a 404.
func (b *Bundle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != b.Href {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", assets.CacheControl)
	http.ServeContent(w, r, path.Base(b.Href), b.BuiltAt, bytes.NewReader(b.Contents))
}
