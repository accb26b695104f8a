package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// StaticConfig controls the colly-backed session factory.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// StaticFactory implements scrape.SessionFactory with plain HTTP fetches via
// colly. It serves scraper-friendly mirrors that render without JavaScript
// and keeps tests and local runs free of a Chrome dependency.
type StaticFactory struct {
	cfg StaticConfig
}

// NewStaticFactory builds a StaticFactory.
func NewStaticFactory(cfg StaticConfig) *StaticFactory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &StaticFactory{cfg: cfg}
}

// NewSession returns a fresh static session.
func (f *StaticFactory) NewSession(_ context.Context) (scrape.Session, error) {
	c := colly.NewCollector()
	c.Async = false
	c.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.SetRequestTimeout(f.cfg.Timeout)
	return &staticSession{collector: c}, nil
}

type staticSession struct {
	collector *colly.Collector

	mu   sync.Mutex
	body string
}

// Navigate performs a GET and retains the response body as the current page.
func (s *staticSession) Navigate(ctx context.Context, url string) error {
	var (
		body     []byte
		fetchErr error
	)
	c := s.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("static navigate canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("static visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return fmt.Errorf("static response %s: %w", url, fetchErr)
		}
	}

	s.mu.Lock()
	s.body = string(body)
	s.mu.Unlock()
	return nil
}

func (s *staticSession) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == "" {
		return "", fmt.Errorf("no page loaded")
	}
	return s.body, nil
}

func (s *staticSession) Title(ctx context.Context) (string, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (s *staticSession) Close() {}
