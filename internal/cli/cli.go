// Package cli is the command line of the volunteer worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"clusterizer/internal/client"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/platform/logger"
	"clusterizer/internal/runner"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the optional YAML file passed with --config. Flags given on the
// command line take precedence over it.
type Config struct {
	ServerURL  string `yaml:"server_url"`
	APIKey     string `yaml:"api_key"`
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`
	CacheDir   string `yaml:"cache_dir"`
	PlatformID int64  `yaml:"platform_id"`
	Threads    int    `yaml:"threads"`
	Queue      int    `yaml:"queue"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

type options struct {
	configFile string
	flags      Config
}

// settings merges defaults, the config file and the flags the user set.
func (o *options) settings(cmd *cobra.Command) (Config, error) {
	file, err := loadConfig(o.configFile)
	if err != nil {
		return Config{}, err
	}

	out := Config{ServerURL: client.DefaultServerURL, LogLevel: "info"}
	overlay(&out, file, func(string) bool { return true })
	overlay(&out, o.flags, cmd.Flags().Changed)

	if out.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return Config{}, fmt.Errorf("locate cache dir: %w", err)
		}
		out.CacheDir = filepath.Join(base, "clusterizer")
	}
	if out.Threads <= 0 {
		out.Threads = runtime.NumCPU()
	}
	if out.Queue <= 0 {
		out.Queue = out.Threads
	}
	return out, nil
}

// overlay copies the non-zero fields of src whose flag name passes set.
func overlay(dst *Config, src Config, set func(name string) bool) {
	if src.ServerURL != "" && set("server-url") {
		dst.ServerURL = src.ServerURL
	}
	if src.APIKey != "" && set("api-key") {
		dst.APIKey = src.APIKey
	}
	if src.LogLevel != "" && set("log-level") {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFile != "" && set("log-file") {
		dst.LogFile = src.LogFile
	}
	if src.CacheDir != "" && set("cache-dir") {
		dst.CacheDir = src.CacheDir
	}
	if src.PlatformID != 0 && set("platform-id") {
		dst.PlatformID = src.PlatformID
	}
	if src.Threads != 0 && set("threads") {
		dst.Threads = src.Threads
	}
	if src.Queue != 0 && set("queue") {
		dst.Queue = src.Queue
	}
}

func BuildCLI() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clusterizer",
		Short:         "Volunteer worker for the Clusterizer coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.flags.ServerURL, "server-url", client.DefaultServerURL, "coordinator base URL")
	pf.StringVar(&opts.flags.APIKey, "api-key", "", "api key returned by register")
	pf.StringVarP(&opts.configFile, "config", "c", "", "optional YAML config file")
	pf.StringVar(&opts.flags.LogLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&opts.flags.LogFile, "log-file", "", "also write logs to this rotated file")

	rootCmd.AddCommand(buildRegisterCommand(opts))
	rootCmd.AddCommand(buildRunCommand(opts))

	return rootCmd
}

func buildRegisterCommand(opts *options) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user and print its api key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			resp, err := client.New(cfg.ServerURL, "").Register(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("register %q: %w", name, err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.APIKey)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "user name (3 to 32 of A-Z, a-z, 0-9, _)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func buildRunCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, execute and submit tasks until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.flags.CacheDir, "cache-dir", "", "where project versions are unpacked (default <user cache dir>/clusterizer)")
	f.Int64Var(&opts.flags.PlatformID, "platform-id", 0, "platform this machine runs programs for")
	f.IntVar(&opts.flags.Threads, "threads", 0, "programs run at once (default number of CPUs)")
	f.IntVar(&opts.flags.Queue, "queue", 0, "tasks kept waiting for a free thread (default threads)")

	return cmd
}

var (
	errNoAPIKey     = errors.New("an api key is required, run register first")
	errNoPlatformID = errors.New("a platform id is required")
)

func runWorker(ctx context.Context, cfg Config) error {
	if cfg.APIKey == "" {
		return errNoAPIKey
	}
	if cfg.PlatformID <= 0 {
		return errNoPlatformID
	}

	if err := prepareCacheDir(cfg.CacheDir); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	api := client.New(cfg.ServerURL, cfg.APIKey)
	user, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("check api key: %w", err)
	}
	platformID := model.PlatformID(cfg.PlatformID)
	platform, err := api.GetPlatform(ctx, platformID)
	if err != nil {
		return fmt.Errorf("look up platform %d: %w", platformID, err)
	}

	log.Info("starting worker",
		zap.String("server_url", cfg.ServerURL),
		zap.String("user", user.Name),
		zap.String("platform", platform.Name),
		zap.String("cache_dir", cfg.CacheDir),
		zap.Int("threads", cfg.Threads),
		zap.Int("queue", cfg.Queue))

	fetcher := runner.NewFetcher(api, runner.NewVersionCache(nil), cfg.CacheDir, platformID, runner.DefaultBackoff, log)
	executor := runner.NewExecutor(cfg.CacheDir, runner.DefaultGracePeriod)
	supervisor := runner.NewSupervisor(fetcher, executor, api, cfg.Threads, cfg.Queue, log)

	err = supervisor.Run(ctx)
	log.Info("worker stopped", zap.Error(err))
	return err
}

// prepareCacheDir creates the version cache under dir and checks that it can
// be written to, so an unusable directory stops the worker before it claims
// tasks it cannot run.
func prepareCacheDir(dir string) error {
	versions := filepath.Join(dir, "project_versions")
	if err := os.MkdirAll(versions, 0o755); err != nil {
		return fmt.Errorf("cache dir %s: %w", dir, err)
	}
	scratch, err := os.MkdirTemp(versions, ".write-check-*")
	if err != nil {
		return fmt.Errorf("cache dir %s is not writable: %w", dir, err)
	}
	return os.Remove(scratch)
}
