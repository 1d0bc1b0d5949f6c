package main

import (
	"time"

	"zunkiree/internal/api"
	"zunkiree/internal/bus"
	"zunkiree/internal/config"
	"zunkiree/internal/conversation"
	"zunkiree/internal/dock"
	"zunkiree/internal/dom"
	"zunkiree/internal/layout"
	"zunkiree/internal/querylog"
)

// session is one widget instance mounted on a host document.
type session struct {
	window *dom.Window
	doc    *dom.Document
	host   *layout.HostManager
	events *bus.EventBus
	store  *querylog.Store
	conv   *conversation.Controller
}

// terminalPage builds the host page used by the terminal front ends: a
// minimal site outline at the configured viewport size.
func terminalPage(cfg *config.Config) *dom.Document {
	win := dom.NewWindow(cfg.Dock.ViewportWidth, cfg.Dock.ViewportHeight)
	doc := dom.NewDocument(win)
	for _, tag := range []string{"header", "main", "footer"} {
		el := doc.CreateElement(tag)
		el.SetAttribute("data-site", cfg.Widget.SiteID)
		doc.Body().AppendChild(el)
	}
	return doc
}

func newSession(cfg *config.Config, doc *dom.Document) (*session, error) {
	s := &session{
		window: doc.Window(),
		doc:    doc,
		events: bus.NewEventBus(logger),
	}
	s.host = layout.NewHostManager(doc, logger)
	s.events.On("*", func(e bus.Event) {
		logger.Debug("widget event", "type", e.Type, "payload", e.Payload)
	})

	if cfg.QueryLog.Enabled {
		store, err := querylog.Open(cfg.QueryLog.DBPath, logger)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	client := api.NewClient(api.ClientConfig{
		BaseURL:   cfg.Widget.APIURL,
		Timeout:   time.Duration(cfg.Widget.TimeoutSeconds) * time.Second,
		UserAgent: cfg.Widget.UserAgent,
		Logger:    logger,
	})

	convCfg := conversation.Config{
		API:    client,
		SiteID: cfg.Widget.SiteID,
		Layout: s.host,
		Dock: dock.New(dock.Config{
			Host:     s.host,
			Viewport: s.window,
			MinWidth: cfg.Dock.MinViewportWidth,
			Logger:   logger,
		}),
		Events:      s.events,
		MaxMessages: cfg.Widget.MaxMessages,
		Logger:      logger,
	}
	// A nil *Store in the interface would not compare equal to nil.
	if s.store != nil {
		convCfg.QueryLog = s.store
	}
	s.conv = conversation.New(convCfg)
	return s, nil
}

// Close undocks, restores the host page and closes the query log.
func (s *session) Close() {
	s.conv.Teardown()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("close query log", "err", err)
		}
	}
}
