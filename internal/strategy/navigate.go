package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/metrics"
	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Predicate decides whether a loaded page actually contains the content a
// strategy expects. It passes when any structural marker is present or the
// page title contains the keyword (case-insensitive, short-circuit OR).
type Predicate struct {
	Markers      []string
	TitleKeyword string
}

// Check evaluates the predicate against a parsed document.
func (p Predicate) Check(doc *goquery.Document) bool {
	for _, marker := range p.Markers {
		if doc.Find(marker).Length() > 0 {
			return true
		}
	}
	if p.TitleKeyword != "" {
		title := strings.ToLower(doc.Find("title").First().Text())
		if strings.Contains(title, strings.ToLower(p.TitleKeyword)) {
			return true
		}
	}
	return false
}

// Resolved is the outcome of a successful candidate-ladder navigation.
type Resolved struct {
	URL string
	Doc *goquery.Document
}

// Navigator walks an ordered list of candidate URLs for the same logical
// target until one satisfies the success predicate. Target sites serve
// different markup to different client fingerprints, so a single fixed URL
// is too brittle; the ladder typically lists an older, scraper-friendlier
// mirror before the canonical site.
type Navigator struct {
	settle  time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewNavigator builds a Navigator. Settle is the minimum wait after each
// navigation before the predicate runs; timeout bounds each candidate
// attempt individually.
func NewNavigator(settle, timeout time.Duration, logger *zap.Logger) *Navigator {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{settle: settle, timeout: timeout, logger: logger}
}

// Resolve tries each candidate in order and returns the first whose page
// passes the predicate. Candidates after the first success are never
// attempted. A timeout or navigation error on one candidate advances to the
// next rather than failing the job. When every candidate fails, Resolve
// returns a NavigationExhaustedError carrying the last underlying error.
func (n *Navigator) Resolve(
	ctx context.Context,
	sess scrape.Session,
	target string,
	candidates []string,
	pred Predicate,
) (Resolved, error) {
	var lastErr error
	for _, candidate := range candidates {
		doc, err := n.attempt(ctx, sess, candidate, pred)
		if err != nil {
			lastErr = err
			metrics.ObserveNavigation(target, "miss")
			n.logger.Warn("navigation candidate failed",
				zap.String("target", target),
				zap.String("candidate", candidate),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		metrics.ObserveNavigation(target, "hit")
		n.logger.Debug("navigation candidate resolved",
			zap.String("target", target),
			zap.String("candidate", candidate),
		)
		return Resolved{URL: candidate, Doc: doc}, nil
	}
	return Resolved{}, &scrape.NavigationExhaustedError{
		Target:     target,
		Candidates: len(candidates),
		Last:       lastErr,
	}
}

// Fetch navigates to a follow-up page (e.g. pagination) without running a
// predicate; callers interpret an empty result set themselves.
func (n *Navigator) Fetch(ctx context.Context, sess scrape.Session, url string) (*goquery.Document, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := sess.Navigate(attemptCtx, url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := n.wait(attemptCtx); err != nil {
		return nil, err
	}
	return n.document(attemptCtx, sess)
}

func (n *Navigator) attempt(
	ctx context.Context,
	sess scrape.Session,
	url string,
	pred Predicate,
) (*goquery.Document, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := sess.Navigate(attemptCtx, url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := n.wait(attemptCtx); err != nil {
		return nil, err
	}
	doc, err := n.document(attemptCtx, sess)
	if err != nil {
		return nil, err
	}
	if !pred.Check(doc) {
		return nil, fmt.Errorf("success predicate failed for %s", url)
	}
	return doc, nil
}

func (n *Navigator) wait(ctx context.Context) error {
	timer := time.NewTimer(n.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (n *Navigator) document(ctx context.Context, sess scrape.Session) (*goquery.Document, error) {
	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}
