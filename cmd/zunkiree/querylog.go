package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zunkiree/internal/querylog"
)

func querylogCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "querylog",
		Short: "Show recently resolved queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.QueryLog.DBPath); err != nil {
				return fmt.Errorf("no query log at %s", cfg.QueryLog.DBPath)
			}
			store, err := querylog.Open(cfg.QueryLog.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				fmt.Println("No queries recorded yet.")
				return nil
			}
			for _, r := range recs {
				status := "ok "
				answer := r.Answer
				if r.IsError {
					status = "ERR"
					answer = r.ErrorText
				}
				fmt.Printf("%s  %s  %-10s %6s  %s\n", r.CreatedAt.Local().Format(time.DateTime), status,
					r.SiteID, r.Latency.Round(time.Millisecond), clip(r.Question, 60))
				if answer != "" {
					fmt.Printf("    -> %s\n", clip(answer, 100))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
