package release

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ManifestLine is one "<digest> <name>" entry of a release manifest.
type ManifestLine struct {
	Digest string
	Name   string
}

// ParseLine splits a raw manifest line into its digest and name.
// lineNo is only used for error reporting.
func ParseLine(lineNo int, raw string) (ManifestLine, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return ManifestLine{}, &ParseError{
			Line:   lineNo,
			Text:   raw,
			Reason: fmt.Sprintf("expected 2 fields, got %d", len(fields)),
		}
	}
	if fields[1] == ReleaseKey {
		return ManifestLine{}, &ParseError{
			Line:   lineNo,
			Text:   raw,
			Reason: "file name is reserved",
		}
	}
	return ManifestLine{Digest: fields[0], Name: fields[1]}, nil
}

// BuildFromManifest indexes raw manifest lines and sets ReleaseKey to the
// aggregate digest of all lines. Blank lines are not indexed but still count
// toward the aggregate digest.
func BuildFromManifest(lines []string) (*Index, error) {
	x := NewIndex()
	for i, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		ml, err := ParseLine(i+1, raw)
		if err != nil {
			return nil, err
		}
		x.set(ml.Name, ml.Digest)
	}
	x.set(ReleaseKey, DigestManifest(lines))
	return x, nil
}

// ReadManifestLines splits manifest text into lines. Both "\n" and "\r\n"
// endings are accepted and a final newline does not yield an empty line.
func ReadManifestLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ReadManifestFile reads a local release manifest. The returned index has
// ReleaseKey set to the digest of the manifest file bytes. The manifest is
// never uploaded, so that entry only tells whether the release changed.
func ReadManifestFile(path string) (*Index, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &IOError{Path: path, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	lines, err := ReadManifestLines(f)
	if err != nil {
		return nil, nil, &IOError{Path: path, Err: err}
	}

	x, err := BuildFromManifest(lines)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	digest, err := DigestFile(path)
	if err != nil {
		return nil, nil, err
	}

	return x.WithRelease(digest), lines, nil
}
