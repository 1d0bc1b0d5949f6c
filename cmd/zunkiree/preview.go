package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"zunkiree/internal/browser"
	"zunkiree/internal/bus"
	"zunkiree/internal/config"
)

func previewCmd() *cobra.Command {
	var (
		url     string
		widths  string
		watch   bool
		outline bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Dock the widget on a real page in Chrome",
		Long: `Loads a page in Chrome, docks the widget beside its content and reports the
rendered widths at each requested viewport width. Widths below the dock
breakpoint force the dock closed, as they would in a visitor's browser.
With --watch a visible browser is opened and kept in sync while you resize it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return fmt.Errorf("--url is required")
			}
			steps, err := parseWidths(widths)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir:   cfg.Browser.ProfileDir,
				Headless:     cfg.Browser.Headless && !watch,
				UserAgent:    cfg.Widget.UserAgent,
				PollInterval: time.Duration(cfg.Browser.PollIntervalMs) * time.Millisecond,
				Timeout:      time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
				Logger:       logger,
			})
			page, err := bridge.Open(ctx, url, steps[0], cfg.Dock.ViewportHeight)
			if err != nil {
				return err
			}
			defer page.Close()

			if outline {
				fmt.Print(page.Document().Body().Outline())
			}
			return runPreview(ctx, cfg, page, steps[1:], watch)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to load")
	cmd.Flags().StringVar(&widths, "widths", "1280,700", "comma-separated viewport widths in CSS px; the first is the initial width")
	cmd.Flags().BoolVar(&watch, "watch", false, "open a visible browser and follow manual resizes until interrupted")
	cmd.Flags().BoolVar(&outline, "outline", false, "print the captured page outline")
	return cmd
}

func runPreview(ctx context.Context, cfg *config.Config, page *browser.Page, steps []int, watch bool) error {
	sess, err := newSession(cfg, page.Document())
	if err != nil {
		return err
	}
	defer func() {
		sess.Close()
		if _, err := page.Sync(context.WithoutCancel(ctx), sess.host); err != nil {
			logger.Warn("restore page", "err", err)
		}
	}()

	forced := 0
	id := sess.events.On(bus.EventDockForcedExit, func(bus.Event) { forced++ })
	defer sess.events.Off(bus.EventDockForcedExit, id)

	sess.conv.Initialize(ctx)
	docked := sess.conv.Dock()
	report := func(label string) error {
		m, err := page.Sync(ctx, sess.host)
		if err != nil {
			return err
		}
		fmt.Printf("%-10s viewport=%4dpx docked=%-5v host=%4dpx panel=%3dpx\n",
			label, m.Viewport, m.Active, m.Host, m.Panel)
		return nil
	}

	if !docked {
		fmt.Printf("dock refused at %dpx (breakpoint %dpx)\n", page.Window().Width(), cfg.Dock.MinViewportWidth)
	}
	if err := report("initial"); err != nil {
		return err
	}
	for _, w := range steps {
		if err := page.SetWidth(ctx, w); err != nil {
			return err
		}
		if err := report(fmt.Sprintf("%dpx", w)); err != nil {
			return err
		}
	}

	if watch {
		fmt.Println("watching; resize the browser window, Ctrl+C to stop")
		last := page.Window().Width()
		err := page.Watch(ctx, func() {
			if w := page.Window().Width(); w != last {
				last = w
				if err := report("resize"); err != nil {
					logger.Warn("sync after resize", "err", err)
				}
			}
		})
		if err != nil {
			return err
		}
	}

	if forced > 0 {
		fmt.Printf("dock was force-closed %d time(s)\n", forced)
	}
	return nil
}

func parseWidths(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.Atoi(part)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid width %q", part)
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no widths given")
	}
	return out, nil
}
