// Package ota drives an over-the-air upgrade of a NodeMCU device: it fetches
// the device's release index, reconciles it with the local one, pushes the
// differing files and restarts the device.
package ota

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fikin/nodemcu-device/internal/device"
	"github.com/fikin/nodemcu-device/internal/reconcile"
	"github.com/fikin/nodemcu-device/internal/release"
)

// Reporter presents a reconciliation to the operator
type Reporter interface {
	Report(local, remote *release.Index, diff *reconcile.Result) error
}

// Engine orchestrates the upgrade process
type Engine struct {
	remote   device.Remote
	reporter Reporter
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates a new upgrade engine
func NewEngine(remote device.Remote, reporter Reporter, logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		remote:   remote,
		reporter: reporter,
		logger:   logger,
		opts:     opts,
	}
}

// Run executes the complete upgrade. Failures before any upload and a
// canceled ctx are returned; upload and restart failures are recorded in
// the Result.
func (e *Engine) Run(ctx context.Context, local Local) (*Result, error) {
	e.logger.Info("starting upgrade",
		"dir", local.Dir,
		"files", local.Index.Len(),
		"include_bootstrap", e.opts.IncludeBootstrap,
		"list_only", e.opts.ListOnly,
		"ignore_release_errors", e.opts.IgnoreReleaseErrors,
		"no_restart", e.opts.NoRestart)

	res := &Result{}

	// Version is informational only
	version, err := e.remote.Version(ctx)
	if err != nil {
		e.logger.Warn("failed to query device version", "error", err)
		res.VersionErr = err
	} else {
		e.logger.Info("device version", "version", version)
		res.Version = version
	}

	remoteIndex, err := e.fetchRemoteIndex(ctx, res)
	if err != nil {
		return res, err
	}

	res.Diff = reconcile.Diff(local.Index, remoteIndex, e.opts.IncludeBootstrap)

	counts := res.Diff.Counts()
	e.logger.Info("upgrade plan",
		"upload", len(res.Diff.Upload),
		"match", counts[reconcile.StatusMatch],
		"excluded", len(res.Diff.Excluded),
		"orphans", len(res.Diff.Orphans),
		"release_changed", res.Diff.ReleaseChanged)

	if err := e.reporter.Report(local.Index, remoteIndex, res.Diff); err != nil {
		e.logger.Warn("failed to render report", "error", err)
	}

	if e.opts.ListOnly {
		e.logPlanDetails(res.Diff)
		e.logger.Info("list-only complete, no changes applied")
		return res, nil
	}

	if err := e.upload(ctx, local.Dir, res); err != nil {
		e.logger.Warn("upgrade interrupted, device not restarted",
			"uploaded", len(res.Uploaded),
			"failed", len(res.Failed),
			"error", err)
		return res, fmt.Errorf("upgrade interrupted: %w", err)
	}

	if len(res.Uploaded) > 0 && !e.opts.NoRestart {
		if err := e.Restart(ctx); err != nil {
			e.logger.Warn("restart failed, upgrade payload was delivered", "error", err)
			res.RestartErr = err
		} else {
			res.Restarted = true
		}
	}

	if len(res.Failed) > 0 {
		e.logger.Warn("upgrade completed with failed uploads",
			"uploaded", len(res.Uploaded),
			"failed", len(res.Failed))
	} else {
		e.logger.Info("upgrade completed successfully", "uploaded", len(res.Uploaded))
	}

	return res, nil
}

// Restart asks the device to reboot
func (e *Engine) Restart(ctx context.Context) error {
	e.logger.Info("restarting device")
	if err := e.remote.Restart(ctx); err != nil {
		return &RestartError{Err: err}
	}
	return nil
}

// fetchRemoteIndex reads and parses the device manifest. With
// IgnoreReleaseErrors set, failures degrade to an empty index so every
// local file becomes an upload candidate.
func (e *Engine) fetchRemoteIndex(ctx context.Context, res *Result) (*release.Index, error) {
	lines, err := e.remote.ReleaseManifest(ctx)
	if err == nil {
		res.RemoteManifest = lines
		var idx *release.Index
		idx, err = release.BuildFromManifest(lines)
		if err == nil {
			e.logger.Debug("remote release indexed", "entries", idx.Len())
			return idx, nil
		}
		err = fmt.Errorf("invalid remote release manifest: %w", err)
	}

	if !e.opts.IgnoreReleaseErrors {
		return nil, fmt.Errorf("failed to read device release: %w", err)
	}

	e.logger.Error("failed to read device release, treating device as empty", "error", err)
	res.RemoteFetchErr = err
	return release.NewIndex(), nil
}

// upload pushes every candidate in order. A failed upload does not stop
// the remaining ones, a canceled ctx does.
func (e *Engine) upload(ctx context.Context, dir string, res *Result) error {
	for _, name := range res.Diff.Upload {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, name)
		e.logger.Info("uploading file", "name", name, "source", path)

		if err := e.remote.Upload(ctx, name, path); err != nil {
			e.logger.Error("upload failed", "name", name, "error", err)
			res.Failed = append(res.Failed, &UploadError{Name: name, Err: err})
			continue
		}
		res.Uploaded = append(res.Uploaded, name)
	}
	return ctx.Err()
}

// logPlanDetails logs what a real run would have done
func (e *Engine) logPlanDetails(diff *reconcile.Result) {
	for _, name := range diff.Upload {
		e.logger.Info("[list-only] would upload", "name", name)
	}
	for _, name := range diff.Excluded {
		e.logger.Info("[list-only] would skip bootstrap file", "name", name)
	}
	if len(diff.Upload) > 0 && !e.opts.NoRestart {
		e.logger.Info("[list-only] would restart device")
	}
}
