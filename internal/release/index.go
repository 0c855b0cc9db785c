// Package release builds content-addressed indices of SPIFFS release files.
//
// An Index maps file names to MD5 digests in a stable order. Indices built
// from a manifest carry the reserved ReleaseKey entry holding the aggregate
// digest of the manifest itself.
package release

import (
	"path/filepath"
	"strings"
)

// ReleaseKey is the reserved index key holding the aggregate release digest.
// It is metadata, never a file name.
const ReleaseKey = "release"

// BootstrapStem is the extension-stripped name of the device bootstrap file,
// which is excluded from upgrades unless explicitly requested.
const BootstrapStem = "bootstrap-sw"

// Index is an ordered, immutable mapping from file name to digest.
type Index struct {
	names   []string
	digests map[string]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{digests: make(map[string]string)}
}

// FromLines returns an index holding exactly the given entries, in order.
// No ReleaseKey entry is added.
func FromLines(lines ...ManifestLine) *Index {
	x := NewIndex()
	for _, ml := range lines {
		x.set(ml.Name, ml.Digest)
	}
	return x
}

// set inserts or replaces a digest. A replaced name keeps its first position.
// Only builders in this package call it, before the index is handed out.
func (x *Index) set(name, digest string) {
	if _, exists := x.digests[name]; !exists {
		x.names = append(x.names, name)
	}
	x.digests[name] = digest
}

// Get returns the digest for name and whether it is present.
func (x *Index) Get(name string) (string, bool) {
	if x == nil {
		return "", false
	}
	d, ok := x.digests[name]
	return d, ok
}

// Has reports whether name is present.
func (x *Index) Has(name string) bool {
	_, ok := x.Get(name)
	return ok
}

// Names returns the keys in insertion order.
func (x *Index) Names() []string {
	if x == nil {
		return nil
	}
	out := make([]string, len(x.names))
	copy(out, x.names)
	return out
}

// Len returns the number of entries, including ReleaseKey if set.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.names)
}

// Release returns the aggregate release digest, if any.
func (x *Index) Release() (string, bool) {
	return x.Get(ReleaseKey)
}

// WithRelease returns a copy of the index with ReleaseKey set to digest.
func (x *Index) WithRelease(digest string) *Index {
	out := NewIndex()
	for _, name := range x.Names() {
		out.set(name, x.digests[name])
	}
	out.set(ReleaseKey, digest)
	return out
}

// IsBootstrap reports whether name is the bootstrap file, e.g.
// bootstrap-sw.lua or bootstrap-sw.lc. The match is exact on the stem.
func IsBootstrap(name string) bool {
	return strings.TrimSuffix(name, filepath.Ext(name)) == BootstrapStem
}

// BuildFromFile indexes a single file under its base name. The result has
// no ReleaseKey entry.
func BuildFromFile(path string) (*Index, error) {
	digest, err := DigestFile(path)
	if err != nil {
		return nil, err
	}

	x := NewIndex()
	x.set(filepath.Base(path), digest)
	return x, nil
}
