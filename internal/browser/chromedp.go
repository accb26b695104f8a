// Package browser provides the live page sessions strategies drive: a
// chromedp-backed headless browser and a static HTTP variant for targets
// that render without JavaScript.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Config controls the behavior of the chromedp session factory.
type Config struct {
	UserAgent      string
	ViewportWidth  int64
	ViewportHeight int64
	NavTimeout     time.Duration
}

// Factory implements scrape.SessionFactory with a shared Chrome allocator.
// The allocator lives for the process; each job gets its own tab context.
type Factory struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewFactory starts the exec allocator with basic disguise flags.
func NewFactory(cfg Config) *Factory {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1366
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 768
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Factory{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// NewSession opens a fresh tab and applies the user-agent and viewport
// disguise before handing it to the caller.
func (f *Factory) NewSession(ctx context.Context) (scrape.Session, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)

	// chromedp actions must run on the tab context; honor the caller's
	// deadline when one is set.
	setupCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		cancel()
		setupCtx, cancel = context.WithDeadline(taskCtx, deadline)
	}
	defer cancel()
	if err := chromedp.Run(setupCtx, f.disguiseAction()); err != nil {
		taskCancel()
		return nil, fmt.Errorf("session setup: %w", err)
	}

	return &session{ctx: taskCtx, cancel: taskCancel, navTimeout: f.cfg.NavTimeout}, nil
}

// Close cancels the allocator context.
func (f *Factory) Close() {
	f.allocCancel()
}

func (f *Factory) disguiseAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(
			f.cfg.ViewportWidth, f.cfg.ViewportHeight, 1.0, false,
		).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
}

func (s *session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.bounded(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	return nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.bounded(ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chromedp outer html: %w", err)
	}
	return html, nil
}

func (s *session) Title(ctx context.Context) (string, error) {
	runCtx, cancel := s.bounded(ctx)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("chromedp title: %w", err)
	}
	return title, nil
}

func (s *session) Close() {
	s.cancel()
}

// bounded derives a run context from the tab context, honoring the caller's
// deadline when one is set. chromedp actions must run on the tab context.
func (s *session) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(s.ctx, deadline)
	}
	return context.WithTimeout(s.ctx, s.navTimeout)
}
