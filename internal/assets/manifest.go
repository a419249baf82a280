package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrAssetNotFound is returned when a logical asset name isn't in the
// Manifest.
var ErrAssetNotFound = errors.New("asset not found")

// CacheControl is sent with every fingerprinted asset. The URL changes
// whenever the content does, so clients may cache forever.
const CacheControl = "public, max-age=31536000, immutable"

type entry struct {
	name    string
	url     string
	hash    uint64
	modTime time.Time

	// contents is snapshotted when the Manifest is built, so a URL always
	// serves the content its fingerprint was computed from
	contents []byte
}

// Manifest maps logical asset names, like "styles/font.css", to URLs that
// embed a fingerprint of the file's content, like
// "/assets/styles/font-1b2c3d4e5f607182.css".
//
// A Manifest is immutable once built; when the files change, build a new one.
type Manifest struct {
	fsys   fs.FS
	prefix string

	byName map[string]entry
	// byPath is keyed by the fingerprinted path, without prefix
	byPath map[string]entry
}

// NewManifest fingerprints every file in fsys and returns a Manifest serving
// them under prefix, e.g. "/assets".
func NewManifest(fsys fs.FS, prefix string) (*Manifest, error) {
	m := &Manifest{
		fsys:   fsys,
		prefix: strings.TrimSuffix(prefix, "/"),
		byName: map[string]entry{},
		byPath: map[string]entry{},
	}
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", name, err)
		}
		hash := xxhash.Sum64(contents)
		fingerprinted := fingerprint(name, hash)
		e := entry{
			name:     name,
			url:      m.prefix + "/" + fingerprinted,
			hash:     hash,
			modTime:  info.ModTime(),
			contents: contents,
		}
		m.byName[name] = e
		m.byPath[fingerprinted] = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build asset manifest: %w", err)
	}
	return m, nil
}

// fingerprint inserts the hex-encoded hash before the file extension.
func fingerprint(name string, hash uint64) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + fmt.Sprintf("%016x", hash) + ext
}

// URL returns the fingerprinted URL for the asset with the given logical name.
func (m *Manifest) URL(name string) (string, error) {
	e, ok := m.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrAssetNotFound, name)
	}
	return e.url, nil
}

// MustURL is like URL, but panics if the asset is unknown. It's meant for
// assets compiled into the binary.
func (m *Manifest) MustURL(name string) string {
	u, err := m.URL(name)
	if err != nil {
		panic(err)
	}
	return u
}

// Names returns the logical names of every asset, sorted.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FS returns the file system the Manifest was built from.
func (m *Manifest) FS() fs.FS {
	return m.fsys
}

// Prefix returns the URL prefix assets are served under.
func (m *Manifest) Prefix() string {
	return m.prefix
}

// ServeHTTP serves fingerprinted asset URLs. Any other path, including the
// unfingerprinted logical name, is a 404, so stale URLs never serve new
// content under a long-lived cache header.
func (m *Manifest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p := strings.TrimPrefix(r.URL.Path, m.prefix+"/")
	e, ok := m.byPath[p]
	if !ok || p == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", CacheControl)
	w.Header().Set("ETag", `"`+strconv.FormatUint(e.hash, 16)+`"`)
	http.ServeContent(w, r, e.name, e.modTime, bytes.NewReader(e.contents))
}
