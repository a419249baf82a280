// Package server serves the root document, its assets and, in development,
// the live reload channel.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"

	"impractical.co/docshell"
	"impractical.co/docshell/internal/assets"
	"impractical.co/docshell/internal/config"
	"impractical.co/docshell/internal/cssbundle"
	"impractical.co/docshell/internal/iframesync"
	"impractical.co/docshell/internal/livereload"
	"impractical.co/docshell/internal/metrics"
	"impractical.co/docshell/internal/root"
)

// AssetsPrefix is the URL prefix static assets are served under.
const AssetsPrefix = "/assets"

// Options are the collaborators of a Server that don't come from its config.
type Options struct {
	// Metrics records renders, bundle builds and live reload activity.
	// Nil disables metrics, whatever the config says.
	Metrics *metrics.Metrics

	// Assets overrides where static assets are read from. When nil, they
	// come from the config's assets_dir, or the embedded copy if that's
	// unset.
	Assets fs.FS

	// Templates overrides where the document's templates are read from.
	// When nil, they come from the config's templates_dir, or the
	// embedded copy if that's unset.
	Templates fs.FS
}

// state is everything derived from the asset files. It's rebuilt as a whole
// and swapped in one step, so a request never sees a manifest from one build
// and a bundle from another.
type state struct {
	manifest *assets.Manifest
	bundle   *cssbundle.Bundle
	doc      root.Document
}

// Server serves the document shell.
type Server struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	assets  fs.FS
	site    *root.Site
	hub     *livereload.Hub

	mu    sync.RWMutex
	state *state
}

// New builds a Server from cfg, fingerprinting the assets and building the
// CSS bundle once before returning.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fsys := opts.Assets
	if fsys == nil {
		fsys = assets.Embedded()
		if cfg.AssetsDir != "" {
			fsys = os.DirFS(cfg.AssetsDir)
		}
	}
	templates := opts.Templates
	if templates == nil && cfg.TemplatesDir != "" {
		templates = os.DirFS(cfg.TemplatesDir)
	}
	var origins []string
	if cfg.IFrameSync.Enabled && cfg.IFrameSync.TargetOrigin != "*" {
		origins = append(origins, cfg.IFrameSync.TargetOrigin)
	}
	s := &Server{
		cfg:     cfg,
		metrics: opts.Metrics,
		assets:  fsys,
		site:    root.NewSite(templates),
		hub:     livereload.NewHub(opts.Metrics, origins...),
	}
	st, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	s.state = st
	return s, nil
}

func (s *Server) build(ctx context.Context) (*state, error) {
	manifest, err := assets.NewManifest(s.assets, AssetsPrefix)
	if err != nil {
		return nil, fmt.Errorf("fingerprint assets: %w", err)
	}
	var urls root.AssetURLs
	for name, dst := range map[string]*string{
		assets.Favicon:            &urls.Favicon,
		assets.FontStylesheet:     &urls.FontStylesheet,
		assets.TailwindStylesheet: &urls.TailwindStylesheet,
	} {
		if *dst, err = manifest.URL(name); err != nil {
			return nil, err
		}
	}

	var bundle *cssbundle.Bundle
	if s.cfg.Bundle.Enabled {
		bundle, err = cssbundle.Bundler{
			FS:      s.assets,
			Entries: s.cfg.Bundle.Entries,
			Minify:  s.cfg.Bundle.Minify,
		}.Build(ctx)
		s.metrics.ObserveBundleBuild(err)
		if err != nil {
			return nil, fmt.Errorf("build css bundle: %w", err)
		}
		urls.Bundle = bundle.Href
	}

	doc := root.Document{
		HeadLinks:    root.Links(urls),
		EntryScripts: s.cfg.Scripts,
	}
	if s.cfg.IFrameSync.Enabled {
		doc.IFrameSync = &iframesync.Widget{TargetOrigin: s.cfg.IFrameSync.TargetOrigin}
	}
	if s.cfg.Dev {
		doc.LiveReload = &livereload.Widget{Path: s.cfg.LiveReload.Path}
	}
	return &state{manifest: manifest, bundle: bundle, doc: doc}, nil
}

func (s *Server) current() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Links returns the links the document currently renders in its head.
func (s *Server) Links() []docshell.Link {
	return slices.Clone(s.current().doc.HeadLinks)
}

// Rebuild re-reads the assets, rebuilds the bundle and drops the parsed
// templates, then tells connected live reload clients to reload, passing
// reason along. If the rebuild fails
// the Server keeps serving what it had.
func (s *Server) Rebuild(ctx context.Context, reason string) error {
	start := time.Now()
	st, err := s.build(ctx)
	if err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("rebuild failed, keeping previous assets")
		return err
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.site.PurgeTemplates(ctx)

	log.Info().Str("reason", reason).Dur("took", time.Since(start)).Msg("rebuilt assets")
	s.hub.Broadcast(reason)
	return nil
}

// WatchPaths returns the on-disk paths whose changes should trigger a
// Rebuild. Only a development server reading assets or templates from disk
// has any.
func (s *Server) WatchPaths() []string {
	if !s.cfg.Dev {
		return nil
	}
	var paths []string
	for _, dir := range []string{s.cfg.AssetsDir, s.cfg.TemplatesDir} {
		if dir != "" {
			paths = append(paths, dir)
		}
	}
	return paths
}

// Close disconnects live reload clients.
func (s *Server) Close() {
	s.hub.Close()
}

// Handler returns the HTTP handler for every route the Server serves.
func (s *Server) Handler() http.Handler {
	pages := http.NewServeMux()
	pages.HandleFunc("/", s.serveDocument)
	pages.HandleFunc(AssetsPrefix+"/", s.serveAsset)
	pages.HandleFunc(cssbundle.DefaultPublicPath+"/", s.serveBundle)

	// the websocket and metrics endpoints stay outside the gzip wrapper:
	// one needs to hijack the connection, the other compresses itself
	mux := http.NewServeMux()
	mux.Handle("/", logRequests(gzhttp.GzipHandler(pages)))
	if s.cfg.Dev {
		mux.Handle(s.cfg.LiveReload.Path, s.hub)
	}
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
	return mux
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	var buf bytes.Buffer
	err := docshell.Render(r.Context(), &buf, s.site, s.current().doc)
	s.metrics.ObserveRender(err, time.Since(start))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err != nil {
		// Render already logged the error and wrote the error page
		w.WriteHeader(http.StatusInternalServerError)
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := buf.WriteTo(w); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("writing document")
	}
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	s.current().manifest.ServeHTTP(w, r)
}

func (s *Server) serveBundle(w http.ResponseWriter, r *http.Request) {
	bundle := s.current().bundle
	if bundle == nil {
		http.NotFound(w, r)
		return
	}
	bundle.ServeHTTP(w, r)
}
