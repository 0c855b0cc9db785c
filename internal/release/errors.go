package release

import "fmt"

// ParseError reports a malformed release manifest line.
type ParseError struct {
	Line   int // 1-based
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// IOError reports a local file that could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
