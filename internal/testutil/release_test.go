package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRelease(t *testing.T) {
	dir := t.TempDir()

	lines, err := WriteRelease(dir, map[string]string{
		"init.lua": "print(1)",
		"app.lc":   "app",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		MD5Hex([]byte("app")) + " app.lc",
		MD5Hex([]byte("print(1)")) + " init.lua",
	}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Errorf("lines = %q, want %q", lines, want)
	}

	data, err := os.ReadFile(filepath.Join(dir, "release"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != want[0]+"\n"+want[1]+"\n" {
		t.Errorf("manifest = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "init.lua")); err != nil {
		t.Errorf("init.lua not written: %v", err)
	}
}
