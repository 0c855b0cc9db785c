// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MD5Hex returns the lowercase hex MD5 of content
func MD5Hex(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// WriteRelease writes files into dir together with a "release" manifest
// listing them in name order, the same layout a SPIFFS build produces.
// It returns the manifest lines.
func WriteRelease(dir string, files map[string]string) ([]string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		content := []byte(files[name])
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%s %s", MD5Hex(content), name))
	}

	manifest := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "release"), []byte(manifest), 0644); err != nil {
		return nil, err
	}
	return lines, nil
}
