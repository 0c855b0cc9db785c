package device

import "fmt"

// RemoteError reports a failed device request: either a transport error or
// a response status other than 200.
type RemoteError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %s", e.Op, e.URL, e.Status)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
