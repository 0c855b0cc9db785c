package device

import (
	"io"
	"net/http"

	"github.com/fikin/nodemcu-device/internal/release"
)

// lineReader adapts an HTTP response body to the line oriented reads the
// manifest parser needs.
type lineReader struct {
	body io.ReadCloser
}

func newLineReader(resp *http.Response) *lineReader {
	return &lineReader{body: resp.Body}
}

// ReadLines consumes the whole body and splits it into manifest lines
func (r *lineReader) ReadLines() ([]string, error) {
	return release.ReadManifestLines(r.body)
}

// Close implements io.Closer
func (r *lineReader) Close() error {
	return r.body.Close()
}
