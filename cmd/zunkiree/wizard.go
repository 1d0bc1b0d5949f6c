package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"zunkiree/internal/api"
	"zunkiree/internal/config"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: backend → site → transcript → query log → save config",
		Long:  "Guides you through the backend URL, site ID, transcript bound and query log, checks the site against the backend, and writes the config to the path used by --config or the default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

func runWizard(ctx context.Context, in io.Reader, out io.Writer) error {
	cfgPath := resolveConfigPath()
	cfg, _, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(in)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, " [%s]: ", def)
		} else {
			fmt.Fprint(out, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Backend
	fmt.Fprintln(out, "\n--- Step 1: Backend ---")
	fmt.Fprint(out, "Zunkiree API URL")
	apiURL, err := prompt(cfg.Widget.APIURL)
	if err != nil {
		return err
	}
	cfg.Widget.APIURL = strings.TrimRight(apiURL, "/")

	// Step 2: Site
	fmt.Fprintln(out, "\n--- Step 2: Site ---")
	fmt.Fprint(out, "Site ID")
	siteID, err := prompt(cfg.Widget.SiteID)
	if err != nil {
		return err
	}
	cfg.Widget.SiteID = siteID

	client := api.NewClient(api.ClientConfig{BaseURL: cfg.Widget.APIURL, Timeout: requestTimeout(cfg), Logger: logger})
	if wc, err := client.FetchConfig(ctx, cfg.Widget.SiteID); err != nil {
		fmt.Fprintf(out, "  Could not fetch the widget config (%v); the widget will fall back to defaults.\n", err)
	} else {
		fmt.Fprintf(out, "  Found %q.\n", wc.BrandName)
	}

	// Step 3: Transcript
	fmt.Fprintln(out, "\n--- Step 3: Transcript ---")
	fmt.Fprint(out, "Max messages kept in a session, 0 for no limit")
	maxMsgs, err := prompt(strconv.Itoa(cfg.Widget.MaxMessages))
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(maxMsgs); err == nil && n >= 0 {
		cfg.Widget.MaxMessages = n
	}

	// Step 4: Query log
	fmt.Fprintln(out, "\n--- Step 4: Query log ---")
	fmt.Fprint(out, "Record answered questions locally? (y/n)")
	def := "n"
	if cfg.QueryLog.Enabled {
		def = "y"
	}
	yn, err := prompt(def)
	if err != nil {
		return err
	}
	cfg.QueryLog.Enabled = strings.HasPrefix(strings.ToLower(yn), "y")

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(out, "\nConfig saved to %s\nRun 'zunkiree chat' or 'zunkiree chat --tui' to start.\n", cfgPath)
	return nil
}
