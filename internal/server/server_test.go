package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impractical.co/docshell/internal/assets"
	"impractical.co/docshell/internal/config"
	"impractical.co/docshell/internal/livereload"
	"impractical.co/docshell/internal/metrics"
)

func testAssets() fstest.MapFS {
	return fstest.MapFS{
		assets.Favicon:            {Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)},
		assets.FontStylesheet:     {Data: []byte(`html { font-family: sans-serif; }`)},
		assets.TailwindStylesheet: {Data: []byte(`.p-8 { padding: 2rem; }`)},
		assets.GlobalStylesheet:   {Data: []byte(`@import "./theme.css"; body { color: var(--color-foreground); }`)},
		"styles/theme.css":        {Data: []byte(`:root { --color-foreground: #073642; }`)},
	}
}

func newServer(t *testing.T, cfg *config.Config, fsys fstest.MapFS) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	s, err := New(context.Background(), cfg, Options{Metrics: m, Assets: fsys})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, m
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

var hrefPattern = regexp.MustCompile(`<link rel="[^"]+" href="([^"]+)"`)

func linkHrefs(body string) []string {
	var hrefs []string
	for _, match := range hrefPattern.FindAllStringSubmatch(body, -1) {
		hrefs = append(hrefs, match[1])
	}
	return hrefs
}

func TestServeDocument(t *testing.T) {
	s, m := newServer(t, config.Default(), testAssets())
	h := s.Handler()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `<p class="p-8 text-xl">Hello World</p>`)
	assert.Contains(t, body, "docshell:iframe-sync")
	assert.NotContains(t, body, livereload.DefaultPath, "live reload is for development only")

	hrefs := linkHrefs(body)
	require.Len(t, hrefs, 4)
	assert.True(t, strings.HasPrefix(hrefs[0], "/assets/favicon-"))
	assert.True(t, strings.HasPrefix(hrefs[1], "/assets/styles/font-"))
	assert.True(t, strings.HasPrefix(hrefs[2], "/assets/styles/tailwind-"))
	assert.True(t, strings.HasPrefix(hrefs[3], "/build/global-"))
	assert.Equal(t, hrefs, linkHrefsOf(s))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Renders.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BundleBuilds.WithLabelValues(metrics.ResultOK)))
}

func linkHrefsOf(s *Server) []string {
	var hrefs []string
	for _, link := range s.Links() {
		hrefs = append(hrefs, link.Href)
	}
	return hrefs
}

func TestServeDocumentWithoutBundle(t *testing.T) {
	cfg := config.Default()
	cfg.Bundle.Enabled = false
	s, _ := newServer(t, cfg, testAssets())

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	hrefs := linkHrefs(rec.Body.String())
	assert.Len(t, hrefs, 3)
	assert.NotContains(t, rec.Body.String(), `href=""`)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/build/global-0000000000000000.css").Code)
}

func TestServeLinkedResources(t *testing.T) {
	s, _ := newServer(t, config.Default(), testAssets())
	h := s.Handler()

	for _, href := range linkHrefsOf(s) {
		rec := get(t, h, href)
		assert.Equal(t, http.StatusOK, rec.Code, href)
		assert.Equal(t, assets.CacheControl, rec.Header().Get("Cache-Control"), href)
	}

	bundle := get(t, h, s.Links()[3].Href)
	assert.Contains(t, bundle.Body.String(), "--color-foreground", "theme import is inlined")
}

func TestServeRoutes(t *testing.T) {
	s, _ := newServer(t, config.Default(), testAssets())
	h := s.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/assets/favicon.svg").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, livereload.DefaultPath).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())

	metricsRec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "docshell_bundle_builds_total")
}

func TestServeGzip(t *testing.T) {
	s, _ := newServer(t, config.Default(), testAssets())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	s, _ := newServer(t, cfg, testAssets())

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewFailsOnMissingAsset(t *testing.T) {
	fsys := testAssets()
	delete(fsys, assets.TailwindStylesheet)

	_, err := New(context.Background(), config.Default(), Options{Assets: fsys})
	assert.ErrorIs(t, err, assets.ErrAssetNotFound)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LiveReload.PollInterval = "soon"

	_, err := New(context.Background(), cfg, Options{Assets: testAssets()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRebuild(t *testing.T) {
	cfg := config.Default()
	cfg.Dev = true
	fsys := testAssets()
	s, _ := newServer(t, cfg, fsys)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+cfg.LiveReload.Path, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg livereload.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, livereload.TypeHello, msg.Type)

	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	page, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(page), cfg.LiveReload.Path)
	before := s.Links()

	fsys["styles/theme.css"] = &fstest.MapFile{Data: []byte(`:root { --color-foreground: #002b36; }`)}
	require.NoError(t, s.Rebuild(context.Background(), "styles/theme.css changed"))

	after := s.Links()
	assert.Equal(t, before[:3], after[:3], "only the bundle changed")
	assert.NotEqual(t, before[3].Href, after[3].Href)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), before[3].Href).Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), after[3].Href).Code)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, livereload.TypeReload, msg.Type)
	assert.Equal(t, "styles/theme.css changed", msg.Reason)
}

func TestRebuildFailureKeepsState(t *testing.T) {
	fsys := testAssets()
	s, m := newServer(t, config.Default(), fsys)
	before := s.Links()

	fsys[assets.GlobalStylesheet] = &fstest.MapFile{Data: []byte(`@import "./missing.css";`)}
	require.Error(t, s.Rebuild(context.Background(), "broken"))

	assert.Equal(t, before, s.Links())
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), before[3].Href).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BundleBuilds.WithLabelValues(metrics.ResultError)))
}

func TestWatchPaths(t *testing.T) {
	cfg := config.Default()
	cfg.AssetsDir = t.TempDir()
	s, _ := newServer(t, cfg, testAssets())
	assert.Empty(t, s.WatchPaths(), "only development servers watch")

	cfg = config.Default()
	cfg.Dev = true
	cfg.AssetsDir = t.TempDir()
	s, _ = newServer(t, cfg, testAssets())
	assert.Equal(t, []string{cfg.AssetsDir}, s.WatchPaths())

	cfg.TemplatesDir = t.TempDir()
	s, _ = newServer(t, cfg, testAssets())
	assert.Equal(t, []string{cfg.AssetsDir, cfg.TemplatesDir}, s.WatchPaths())
}

func TestRebuildReloadsTemplates(t *testing.T) {
	templates := fstest.MapFS{
		"document.html.tmpl": {Data: []byte(`<html><head></head><body>first</body></html>`)},
	}
	s, err := New(context.Background(), config.Default(), Options{Assets: testAssets(), Templates: templates})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	assert.Contains(t, get(t, s.Handler(), "/").Body.String(), "first")

	templates["document.html.tmpl"] = &fstest.MapFile{Data: []byte(`<html><head></head><body>second</body></html>`)}
	assert.Contains(t, get(t, s.Handler(), "/").Body.String(), "first", "parsed templates are cached")

	require.NoError(t, s.Rebuild(context.Background(), "document.html.tmpl changed"))
	assert.Contains(t, get(t, s.Handler(), "/").Body.String(), "second")
}

func TestLinksReturnsCopy(t *testing.T) {
	s, _ := newServer(t, config.Default(), testAssets())

	links := s.Links()
	links[0].Href = "javascript:alert(1)"

	assert.NotEqual(t, links[0].Href, s.Links()[0].Href)
	assert.NotContains(t, get(t, s.Handler(), "/").Body.String(), "javascript:alert(1)")
}

func TestLiveReloadChecksOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.Dev = true
	cfg.IFrameSync.TargetOrigin = "http://localhost:5639"
	s, _ := newServer(t, cfg, testAssets())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.LiveReload.Path

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {cfg.IFrameSync.TargetOrigin}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}
