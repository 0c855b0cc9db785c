package report

import (
	"fmt"
	"io"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// ManifestDiff writes a unified diff from the device manifest to the local
// one. Nothing is written when both are identical.
func ManifestDiff(w io.Writer, remoteName string, remote []string, localName string, local []string) error {
	u := difflib.UnifiedDiff{
		A:        withNewlines(remote),
		B:        withNewlines(local),
		FromFile: remoteName,
		ToFile:   localName,
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return fmt.Errorf("failed to diff manifests: %w", err)
	}
	if s == "" {
		return nil
	}
	_, err = io.WriteString(w, s)
	return err
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
