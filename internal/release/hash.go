package release

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// DigestFile computes the MD5 hash of a file's content as lowercase hex.
// The device firmware indexes its file store with MD5, so digests must use
// the same algorithm to be comparable.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &IOError{Path: path, Err: err}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestManifest computes the aggregate release digest over raw manifest
// lines: the lines joined by "\n" plus a trailing "\n".
func DigestManifest(lines []string) string {
	h := md5.New()
	_, _ = io.WriteString(h, strings.Join(lines, "\n"))
	_, _ = io.WriteString(h, "\n")
	return hex.EncodeToString(h.Sum(nil))
}
