package ota

import (
	"fmt"

	"github.com/fikin/nodemcu-device/internal/reconcile"
	"github.com/fikin/nodemcu-device/internal/release"
)

// Options controls one upgrade run
type Options struct {
	IncludeBootstrap    bool // also push bootstrap-sw.* when it differs
	ListOnly            bool // report only, no upload and no restart
	IgnoreReleaseErrors bool // treat a failed remote manifest fetch as an empty device
	NoRestart           bool // skip the restart after uploading
}

// Local is the reference set the device is upgraded to
type Local struct {
	Dir   string         // directory holding the files named in Index
	Index *release.Index // local release index
}

// Result describes what a run did
type Result struct {
	Version        string
	VersionErr     error
	RemoteManifest []string
	RemoteFetchErr error // set when a manifest failure was tolerated
	Diff           *reconcile.Result
	Uploaded       []string
	Failed         []*UploadError
	Restarted      bool
	RestartErr     error
}

// UploadError records a single failed upload
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// RestartError records a failed restart request
type RestartError struct {
	Err error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("restart: %v", e.Err)
}

func (e *RestartError) Unwrap() error {
	return e.Err
}
