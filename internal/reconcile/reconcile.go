// Package reconcile compares a local release index with the one reported by
// a device and decides which files need to be pushed.
package reconcile

import "github.com/fikin/nodemcu-device/internal/release"

// Status classifies one entry of a diff
type Status string

const (
	StatusMatch    Status = "match"    // same digest on both sides
	StatusChanged  Status = "changed"  // present on both sides, digests differ
	StatusNew      Status = "new"      // present locally only
	StatusExcluded Status = "excluded" // differs, but skipped by the bootstrap policy
	StatusOrphan   Status = "orphan"   // present on the device only, never uploaded
)

// Entry is one row of the reconciliation report
type Entry struct {
	Name      string
	Local     string
	Remote    string
	HasLocal  bool
	HasRemote bool
	Status    Status
}

// Differs reports whether the entry is anything other than a match
func (e Entry) Differs() bool {
	return e.Status != StatusMatch
}

// Result holds the outcome of comparing two indices
type Result struct {
	// Entries lists local entries in local order followed by remote orphans.
	Entries []Entry
	// Upload lists file names to push, in local order. It never contains
	// release.ReleaseKey.
	Upload []string
	// Orphans lists names only present on the device.
	Orphans []string
	// Excluded lists differing bootstrap files skipped by policy.
	Excluded []string
	// ReleaseChanged is true when the aggregate release digests differ.
	ReleaseChanged bool
}

// Diff compares local against remote. Only local files are ever candidates
// for upload; names known only to the device are reported as orphans.
func Diff(local, remote *release.Index, includeBootstrap bool) *Result {
	res := &Result{
		Upload:   make([]string, 0),
		Orphans:  make([]string, 0),
		Excluded: make([]string, 0),
	}

	for _, name := range local.Names() {
		localDigest, _ := local.Get(name)
		remoteDigest, onRemote := remote.Get(name)

		entry := Entry{
			Name:      name,
			Local:     localDigest,
			Remote:    remoteDigest,
			HasLocal:  true,
			HasRemote: onRemote,
		}

		switch {
		case onRemote && remoteDigest == localDigest:
			entry.Status = StatusMatch
		case !includeBootstrap && release.IsBootstrap(name):
			entry.Status = StatusExcluded
			res.Excluded = append(res.Excluded, name)
		default:
			if onRemote {
				entry.Status = StatusChanged
			} else {
				entry.Status = StatusNew
			}
			if name == release.ReleaseKey {
				res.ReleaseChanged = true
			} else {
				res.Upload = append(res.Upload, name)
			}
		}

		res.Entries = append(res.Entries, entry)
	}

	for _, name := range remote.Names() {
		if local.Has(name) {
			continue
		}
		remoteDigest, _ := remote.Get(name)
		res.Entries = append(res.Entries, Entry{
			Name:      name,
			Remote:    remoteDigest,
			HasRemote: true,
			Status:    StatusOrphan,
		})
		res.Orphans = append(res.Orphans, name)
	}

	return res
}

// Counts returns the number of entries per status
func (r *Result) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, e := range r.Entries {
		counts[e.Status]++
	}
	return counts
}
