package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"zunkiree/internal/api"
	"zunkiree/internal/config"
	"zunkiree/internal/querylog"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Zunkiree setup",
		Long: `Verifies the configuration, that the backend answers its health and
widget config endpoints for the configured site, and that the query log
database is usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Zunkiree Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, _, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			client := api.NewClient(api.ClientConfig{
				BaseURL:   cfg.Widget.APIURL,
				Timeout:   requestTimeout(cfg),
				UserAgent: cfg.Widget.UserAgent,
				Logger:    logger,
			})

			// 3. Backend health
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cfg))
			defer cancel()
			if hs, err := client.Health(ctx); err != nil {
				printFail("Backend health", err.Error())
				failed++
			} else {
				printPass("Backend health", fmt.Sprintf("%s (%s, version %s)", cfg.Widget.APIURL, hs.Status, hs.Version))
				passed++
			}

			// 4. Widget config for the site
			if wc, err := client.FetchConfig(ctx, cfg.Widget.SiteID); err != nil {
				printFail("Widget config", fmt.Sprintf("site %q: %v", cfg.Widget.SiteID, err))
				failed++
			} else {
				printPass("Widget config", fmt.Sprintf("site %q brand %q", cfg.Widget.SiteID, wc.BrandName))
				passed++
			}

			// 5. Query log database
			if cfg.QueryLog.Enabled {
				if n, err := checkQueryLog(cfg.QueryLog.DBPath); err != nil {
					printFail("Query log", err.Error())
					failed++
				} else {
					printPass("Query log", fmt.Sprintf("%s (%d records)", cfg.QueryLog.DBPath, n))
					passed++
				}
			} else {
				printWarn("Query log", "disabled")
				warned++
			}

			// 6. Log file writable
			if cfg.General.LogFile != "" {
				dir := filepath.Dir(config.ExpandPath(cfg.General.LogFile))
				if err := os.MkdirAll(dir, 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks. The widget still runs, but with the default config.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nZunkiree should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Zunkiree is ready to run.\n")
			}
			return nil
		},
	}
}

// checkQueryLog opens (and migrates) the query log and returns its size.
func checkQueryLog(dbPath string) (int, error) {
	store, err := querylog.Open(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		return 0, fmt.Errorf("cannot ping: %w", err)
	}
	return store.Count(ctx)
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
