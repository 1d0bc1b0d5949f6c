package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"zunkiree/internal/channel"
	"zunkiree/internal/config"
	"zunkiree/internal/metrics"
	"zunkiree/internal/tui"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

// envFile is read at startup and carried by backups.
const envFile = ".env"

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// A missing .env is normal; variables already set win.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		logger.Warn("cannot read .env", "err", err)
	}

	root := &cobra.Command{
		Use:   "zunkiree",
		Short: "Zunkiree: embeddable Q&A widget runtime",
		Long:  "Zunkiree runs the site-assistant widget against a Zunkiree backend, in the terminal or against a real page.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file, .json or .yaml (default: ~/.zunkiree/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(wizardCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(previewCmd())
	root.AddCommand(querylogCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist yet.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, found, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !found {
		logger.Debug("config not found, using defaults", "path", cfgPath)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger replaces the bootstrap logger with one honouring the config.
// With quiet set and no log file, output is discarded so it cannot corrupt
// a full-screen UI.
func setupLogger(cfg *config.Config, quiet bool) (func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case cfg.General.LogFile != "":
		path := config.ExpandPath(cfg.General.LogFile)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case quiet:
		w = io.Discard
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.General.LogLevel)}))
	return closeFn, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func chatCmd() *cobra.Command {
	var (
		useTUI      bool
		plain       bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive widget session in the terminal",
		Long: `Runs the widget against the configured backend. The default front end is a
line-oriented REPL; --tui opens a full-screen view where the terminal width
acts as the page viewport.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg, useTUI)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = metricsAddr
			}
			if cfg.Metrics.Enabled {
				addr, errc, err := metrics.Collector.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Endpoint, logger)
				if err != nil {
					return err
				}
				logger.Info("metrics listening", "addr", addr.String(), "endpoint", cfg.Metrics.Endpoint)
				go func() {
					if err := <-errc; err != nil {
						logger.Error("metrics server stopped", "err", err)
					}
				}()
			}

			sess, err := newSession(cfg, terminalPage(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			if useTUI {
				return tui.Run(ctx, tui.Config{
					Conversation:    sess.conv,
					Host:            sess.host,
					Window:          sess.window,
					Events:          sess.events,
					PixelsPerColumn: cfg.Dock.PixelsPerColumn,
					PanelColumns:    cfg.Dock.PanelColumns,
					Logger:          logger,
				})
			}

			cli := channel.NewCLI(channel.CLIConfig{
				Conversation: sess.conv,
				Window:       sess.window,
				Events:       sess.events,
				Logger:       logger,
				Plain:        plain,
			})
			return cli.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "full-screen terminal UI")
	cmd.Flags().BoolVar(&plain, "plain", false, "no colours or spinner in the REPL")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Show, get and set configuration values. Changes are saved to the config file.",
	}

	var asYAML bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var data []byte
			if asYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Println(strings.TrimRight(string(data), "\n"))
			return nil
		},
	}
	show.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. widget.siteId)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. widget.maxMessages 50)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every settable path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(cfg)
			for _, p := range config.SortedPaths(cfg) {
				fmt.Printf("%-28s %v\n", p, paths[p])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zunkiree %s\n", version)
		},
	}
}

// requestTimeout bounds one-shot commands that talk to the backend.
func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.Widget.TimeoutSeconds > 0 {
		return time.Duration(cfg.Widget.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}
