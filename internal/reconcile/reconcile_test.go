package reconcile

import (
	"reflect"
	"testing"

	"github.com/fikin/nodemcu-device/internal/release"
)

func index(pairs ...string) *release.Index {
	lines := make([]release.ManifestLine, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		lines = append(lines, release.ManifestLine{Name: pairs[i], Digest: pairs[i+1]})
	}
	return release.FromLines(lines...)
}

func statusOf(t *testing.T, res *Result, name string) Status {
	t.Helper()
	for _, e := range res.Entries {
		if e.Name == name {
			return e.Status
		}
	}
	t.Fatalf("no entry for %s", name)
	return ""
}

func TestDiff_Example(t *testing.T) {
	local := index("a.lua", "111", "bootstrap-sw.lc", "222")
	remote := index("a.lua", "999")

	res := Diff(local, remote, false)

	if !reflect.DeepEqual(res.Upload, []string{"a.lua"}) {
		t.Errorf("upload = %v, want [a.lua]", res.Upload)
	}
	if !reflect.DeepEqual(res.Excluded, []string{"bootstrap-sw.lc"}) {
		t.Errorf("excluded = %v", res.Excluded)
	}
	if len(res.Orphans) != 0 {
		t.Errorf("orphans = %v, want none", res.Orphans)
	}
	if got := statusOf(t, res, "bootstrap-sw.lc"); got != StatusExcluded {
		t.Errorf("bootstrap status = %s", got)
	}
	if got := statusOf(t, res, "a.lua"); got != StatusChanged {
		t.Errorf("a.lua status = %s", got)
	}
}

func TestDiff_IncludeBootstrap(t *testing.T) {
	local := index("a.lua", "111", "bootstrap-sw.lc", "222")
	remote := index("a.lua", "111", "bootstrap-sw.lc", "000")

	if res := Diff(local, remote, false); len(res.Upload) != 0 {
		t.Errorf("excluded bootstrap must not be uploaded, got %v", res.Upload)
	}
	res := Diff(local, remote, true)
	if !reflect.DeepEqual(res.Upload, []string{"bootstrap-sw.lc"}) {
		t.Errorf("upload = %v", res.Upload)
	}
}

func TestDiff_MatchingBootstrapIsMatch(t *testing.T) {
	local := index("bootstrap-sw.lua", "222")
	remote := index("bootstrap-sw.lua", "222")

	res := Diff(local, remote, false)
	if got := statusOf(t, res, "bootstrap-sw.lua"); got != StatusMatch {
		t.Errorf("status = %s, want match", got)
	}
	if len(res.Excluded) != 0 {
		t.Errorf("excluded = %v", res.Excluded)
	}
}

func TestDiff_OrphansNeverUploaded(t *testing.T) {
	local := index("a.lua", "111")
	remote := index("a.lua", "111", "old.lua", "555")

	res := Diff(local, remote, true)
	if len(res.Upload) != 0 {
		t.Errorf("upload = %v, want none", res.Upload)
	}
	if !reflect.DeepEqual(res.Orphans, []string{"old.lua"}) {
		t.Errorf("orphans = %v", res.Orphans)
	}
	last := res.Entries[len(res.Entries)-1]
	if last.Name != "old.lua" || last.HasLocal || !last.HasRemote || last.Status != StatusOrphan {
		t.Errorf("unexpected orphan entry %+v", last)
	}
}

func TestDiff_NewFiles(t *testing.T) {
	local := index("b.lua", "2", "a.lua", "1")
	res := Diff(local, release.NewIndex(), false)

	if !reflect.DeepEqual(res.Upload, []string{"b.lua", "a.lua"}) {
		t.Errorf("upload = %v, want local order", res.Upload)
	}
	for _, e := range res.Entries {
		if e.Status != StatusNew || e.HasRemote {
			t.Errorf("unexpected entry %+v", e)
		}
	}
}

func TestDiff_ReleaseKeyNotUploaded(t *testing.T) {
	local := index("a.lua", "1", release.ReleaseKey, "aaa")
	remote := index("a.lua", "1", release.ReleaseKey, "bbb")

	res := Diff(local, remote, false)
	if len(res.Upload) != 0 {
		t.Errorf("upload = %v, want none", res.Upload)
	}
	if !res.ReleaseChanged {
		t.Error("expected ReleaseChanged")
	}
	if got := statusOf(t, res, release.ReleaseKey); got != StatusChanged {
		t.Errorf("release status = %s", got)
	}
}

func TestDiff_Idempotent(t *testing.T) {
	local, err := release.BuildFromManifest([]string{"111 a.lua", "222 b.lua"})
	if err != nil {
		t.Fatal(err)
	}
	remote, err := release.BuildFromManifest([]string{"111 a.lua", "222 b.lua"})
	if err != nil {
		t.Fatal(err)
	}

	res := Diff(local, remote, true)
	if len(res.Upload) != 0 || res.ReleaseChanged {
		t.Errorf("expected no changes, got upload=%v releaseChanged=%v", res.Upload, res.ReleaseChanged)
	}
	counts := res.Counts()
	if counts[StatusMatch] != 3 {
		t.Errorf("expected 3 matches, got %v", counts)
	}
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	local := index("a.lua", "1")
	remote := index("b.lua", "2")

	_ = Diff(local, remote, false)

	if !reflect.DeepEqual(local.Names(), []string{"a.lua"}) {
		t.Errorf("local changed: %v", local.Names())
	}
	if !reflect.DeepEqual(remote.Names(), []string{"b.lua"}) {
		t.Errorf("remote changed: %v", remote.Names())
	}
}

func TestEntry_Differs(t *testing.T) {
	local := index("same.lua", "1", "a.lua", "2", "bootstrap-sw.lc", "3")
	remote := index("same.lua", "1", "a.lua", "9", "old.lua", "4")

	for _, e := range Diff(local, remote, false).Entries {
		if got, want := e.Differs(), e.Name != "same.lua"; got != want {
			t.Errorf("%s (%s): Differs() = %v, want %v", e.Name, e.Status, got, want)
		}
	}
}
