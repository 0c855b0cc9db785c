package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fikin/nodemcu-device/internal/config"
	"github.com/fikin/nodemcu-device/internal/device"
	"github.com/fikin/nodemcu-device/internal/ota"
	"github.com/fikin/nodemcu-device/internal/release"
	"github.com/fikin/nodemcu-device/internal/report"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// passwordEnv is consulted when --password is not given
const passwordEnv = "NODEMCU_OTA_PASSWORD"

// flags holds the command line values of one invocation
type flags struct {
	cfgFile   string
	logLevel  string
	logFormat string

	host     string
	user     string
	password string

	includeBootstrap    bool
	listOnly            bool
	ignoreReleaseErrors bool
	noRestart           bool
	reportFormat        string
	showManifestDiff    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "nodemcu-ota",
		Short: "OTA software uploader for NodeMCU devices",
		Long: `nodemcu-ota compares the files stored on a NodeMCU device with a local
SPIFFS release and uploads only the files that differ over the device's OTA
HTTP service.

After a successful upload the device is restarted unless --no-restart is given.
Use --list-only to preview the differences without changing the device.`,
		SilenceUsage: true,
	}

	upgradeDirCmd := &cobra.Command{
		Use:   "upgrade-dir <spiffs-dir>",
		Short: "Upgrade the device from a SPIFFS release directory",
		Long: `Upgrade-dir reads the "release" manifest in the given directory, compares it
with the manifest reported by the device and uploads every file whose digest
differs. The bootstrap-sw file is skipped unless --include-bootstrap is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgradeDir(cmd, f, args[0])
		},
	}

	upgradeFileCmd := &cobra.Command{
		Use:   "upgrade-file <file>",
		Short: "Upgrade a single file on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgradeFile(cmd, f, args[0])
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(cmd, f)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "nodemcu-ota %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
			_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.cfgFile, "config", "", "config file (default is $HOME/.config/nodemcu-ota/config.yaml)")
	pf.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "text", "log format (text, json)")
	pf.StringVar(&f.host, "host", "", "device host, i.e. <host.domain>[:port]")
	pf.StringVar(&f.user, "user", "", "OTA service user")
	pf.StringVar(&f.password, "password", "", "OTA service password (or use "+passwordEnv+")")

	// Upgrade flags
	for _, c := range []*cobra.Command{upgradeDirCmd, upgradeFileCmd} {
		c.Flags().BoolVar(&f.includeBootstrap, "include-bootstrap", false, "also upgrade the bootstrap-sw file, excluded by default")
		c.Flags().BoolVar(&f.listOnly, "list-only", false, "only list the differences, do not upgrade")
		c.Flags().BoolVar(&f.ignoreReleaseErrors, "ignore-release-errors", false, "continue when the device release cannot be read, uploading every file")
		c.Flags().BoolVar(&f.noRestart, "no-restart", false, "do not restart the device after upgrade")
		c.Flags().StringVar(&f.reportFormat, "report-format", string(config.DefaultReportFormat), "report format (table, json)")
	}
	upgradeDirCmd.Flags().BoolVar(&f.showManifestDiff, "show-manifest-diff", false, "print a unified diff of the device and local manifests")

	rootCmd.AddCommand(upgradeDirCmd)
	rootCmd.AddCommand(upgradeFileCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// session is what every device command needs
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	cfg    *config.Config
	client *device.Client
}

func newSession(cmd *cobra.Command, f *flags) (*session, error) {
	logger := setupLogger(f, cmd.ErrOrStderr()).With("run_id", uuid.NewString())

	cfg, err := loadConfig(f, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, f, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := resolvePassword(cfg); err != nil {
		return nil, err
	}

	client := device.NewClient(cfg.Device.Host,
		device.Credentials{User: cfg.Device.User, Password: cfg.Device.Password},
		device.Options{Timeout: cfg.Device.Timeout, RequestInterval: cfg.Device.RequestInterval},
		logger)

	ctx, cancel := setupSignalHandler()
	return &session{ctx: ctx, cancel: cancel, logger: logger, cfg: cfg, client: client}, nil
}

func (s *session) engine(out io.Writer, localLabel string) (*ota.Engine, error) {
	reporter, err := report.New(s.cfg.Upgrade.ReportFormat, out, localLabel, device.BaseURL(s.cfg.Device.Host))
	if err != nil {
		return nil, err
	}
	return ota.NewEngine(s.client, reporter, s.logger, s.cfg.Options()), nil
}

func runUpgradeDir(cmd *cobra.Command, f *flags, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a valid directory", dir)
	}

	s, err := newSession(cmd, f)
	if err != nil {
		return err
	}
	defer s.cancel()

	manifestPath := filepath.Join(dir, release.ReleaseKey)
	idx, lines, err := release.ReadManifestFile(manifestPath)
	if err != nil {
		s.logger.Error("failed to read local release", "error", err)
		return err
	}

	engine, err := s.engine(cmd.OutOrStdout(), dir)
	if err != nil {
		return err
	}

	res, err := engine.Run(s.ctx, ota.Local{Dir: dir, Index: idx})
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return err
	}

	if f.showManifestDiff && res.RemoteFetchErr == nil {
		remoteName := device.BaseURL(s.cfg.Device.Host) + "/ota?release"
		if err := report.ManifestDiff(cmd.OutOrStdout(), remoteName, res.RemoteManifest, manifestPath, lines); err != nil {
			s.logger.Warn("failed to print manifest diff", "error", err)
		}
	}

	return nil
}

func runUpgradeFile(cmd *cobra.Command, f *flags, path string) error {
	s, err := newSession(cmd, f)
	if err != nil {
		return err
	}
	defer s.cancel()

	idx, err := release.BuildFromFile(path)
	if err != nil {
		s.logger.Error("failed to read local file", "error", err)
		return err
	}

	engine, err := s.engine(cmd.OutOrStdout(), filepath.Dir(path))
	if err != nil {
		return err
	}

	if _, err := engine.Run(s.ctx, ota.Local{Dir: filepath.Dir(path), Index: idx}); err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return err
	}
	return nil
}

func runRestart(cmd *cobra.Command, f *flags) error {
	s, err := newSession(cmd, f)
	if err != nil {
		return err
	}
	defer s.cancel()

	engine, err := s.engine(cmd.OutOrStdout(), "")
	if err != nil {
		return err
	}
	if err := engine.Restart(s.ctx); err != nil {
		s.logger.Error("restart failed", "error", err)
		return err
	}
	return nil
}

func setupLogger(f *flags, w io.Writer) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if f.logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func loadConfig(f *flags, logger *slog.Logger) (*config.Config, error) {
	// Determine config file path; only an explicit path must exist
	configPath := f.cfgFile
	optional := configPath == ""
	if optional {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Debug("no home directory, using default configuration", "error", err)
			return config.Default(), nil
		}
		configPath = filepath.Join(home, ".config", "nodemcu-ota", "config.yaml")
	}

	logger.Debug("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath, optional)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"host", cfg.Device.Host,
		"user", cfg.Device.User,
		"timeout", cfg.Device.Timeout,
		"request_interval", cfg.Device.RequestInterval)

	return cfg, nil
}

// applyFlags overrides configuration values with flags given explicitly
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("host") {
		cfg.Device.Host = f.host
	}
	if changed("user") {
		cfg.Device.User = f.user
	}
	if changed("password") {
		cfg.Device.Password = f.password
	}
	if changed("include-bootstrap") {
		cfg.Upgrade.IncludeBootstrap = f.includeBootstrap
	}
	if changed("list-only") {
		cfg.Upgrade.ListOnly = f.listOnly
	}
	if changed("ignore-release-errors") {
		cfg.Upgrade.IgnoreReleaseErrors = f.ignoreReleaseErrors
	}
	if changed("no-restart") {
		cfg.Upgrade.NoRestart = f.noRestart
	}
	if changed("report-format") {
		cfg.Upgrade.ReportFormat = report.Format(f.reportFormat)
	}
}

// resolvePassword resolves the password from various sources.
// Priority: flag > env > password file > interactive prompt
func resolvePassword(cfg *config.Config) error {
	if cfg.Device.Password != "" {
		return nil
	}

	if envPass := os.Getenv(passwordEnv); envPass != "" {
		cfg.Device.Password = envPass
		return nil
	}

	if err := cfg.ResolvePassword(); err != nil {
		return err
	}
	if cfg.Device.Password != "" {
		return nil
	}

	// Interactive prompt (if terminal is available)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("no password given: use --password, " + passwordEnv + " or device.password_file")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Device.Password = string(password)
	return nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
