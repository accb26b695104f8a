package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Discovery page alternates, most stable markup first.
var tiktokMirrors = []string{
	"https://www.tiktok.com/discover",
	"https://www.tiktok.com/explore",
}

var tiktokPredicate = Predicate{
	Markers: []string{
		`[data-e2e="discover-item"]`,
		`[data-e2e="recommend-list-item-container"]`,
		"div.discover-item",
		`a[href*="/video/"]`,
	},
	TitleKeyword: "tiktok",
}

var tiktokNameSpec = FieldSpec{
	Selectors: []string{`[data-e2e="discover-card-title"]`, ".title", "h3", "p"},
}

// TikTok extracts typed discovery items (videos, profiles, categories) from
// the discovery surface and de-duplicates them on (type, name).
type TikTok struct {
	nav    *Navigator
	clock  scrape.Clock
	logger *zap.Logger
}

// NewTikTok builds the tiktok discovery strategy.
func NewTikTok(nav *Navigator, clock scrape.Clock, logger *zap.Logger) *TikTok {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TikTok{nav: nav, clock: clock, logger: logger}
}

// Source returns the job type this strategy serves.
func (s *TikTok) Source() string { return scrape.SourceTikTok }

// Extract resolves the discovery page, parses typed items, and keeps the
// first occurrence of each (type, name) pair.
func (s *TikTok) Extract(
	ctx context.Context,
	sess scrape.Session,
	params scrape.JobParameters,
	report func(percent int),
) (scrape.Extraction, error) {
	candidates := tiktokMirrors
	if params.URL != "" {
		candidates = append([]string{params.URL}, tiktokMirrors...)
	}

	resolved, err := s.nav.Resolve(ctx, sess, s.Source(), candidates, tiktokPredicate)
	if err != nil {
		return scrape.Extraction{}, err
	}
	report(50)

	maxItems := params.MaxItems
	if maxItems <= 0 {
		maxItems = 50
	}

	items, err := s.extractPrimary(resolved.Doc, maxItems)
	if err != nil {
		s.logger.Warn("primary discovery extraction failed, falling back",
			zap.String("url", resolved.URL), zap.Error(err))
		items, err = s.extractFallback(resolved.Doc, maxItems)
		if err != nil {
			return scrape.Extraction{}, &scrape.BatchExtractionError{Source: s.Source(), Err: err}
		}
	}
	items = dedupeItems(items)
	report(75)

	records := make([]scrape.Record, 0, len(items))
	for _, item := range items {
		rec, err := scrape.NormalizeDiscoveryItem(item, resolved.URL)
		if err != nil {
			s.logger.Warn("skipping malformed discovery item", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	extraction := scrape.Extraction{Records: records}
	if len(records) > 0 {
		extraction.Top = truncate(records[0].Title, 80)
	}
	return extraction, nil
}

func (s *TikTok) extractPrimary(doc *goquery.Document, limit int) ([]scrape.DiscoveryItem, error) {
	containers := doc.Find(`[data-e2e="discover-item"], [data-e2e="recommend-list-item-container"], div.discover-item`)
	if containers.Length() == 0 {
		return nil, fmt.Errorf("no discovery containers found")
	}

	now := s.clock.Now()
	var items []scrape.DiscoveryItem
	containers.EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}
		item, err := s.parseItem(sel, now)
		if err != nil {
			s.logger.Debug("skipping discovery item", zap.Int("index", i), zap.Error(err))
			return true
		}
		items = append(items, item)
		return true
	})
	return items, nil
}

func (s *TikTok) parseItem(sel *goquery.Selection, now time.Time) (scrape.DiscoveryItem, error) {
	link := sel.Find("a").First()
	href := ExtractAttr(link, []string{"href"}, ExtractAttr(sel, []string{"href"}, ""))
	name := ExtractField(sel, tiktokNameSpec)
	if name == "" {
		name = lastPathSegment(href)
	}
	if name == "" {
		return scrape.DiscoveryItem{}, fmt.Errorf("item has no name")
	}
	return scrape.DiscoveryItem{
		Type:      classifyDiscovery(href),
		Name:      name,
		URL:       href,
		Text:      strings.TrimSpace(sel.Find("p, .desc").First().Text()),
		ScrapedAt: now,
	}, nil
}

// extractFallback scans raw anchors so the job still returns some signal
// when the structured containers are absent.
func (s *TikTok) extractFallback(doc *goquery.Document, limit int) ([]scrape.DiscoveryItem, error) {
	now := s.clock.Now()
	var items []scrape.DiscoveryItem
	doc.Find(`a[href*="/video/"], a[href^="/@"], a[href*="/tag/"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}
		href, _ := sel.Attr("href")
		name := strings.TrimSpace(sel.Text())
		if name == "" {
			name = lastPathSegment(href)
		}
		if name == "" {
			return true
		}
		items = append(items, scrape.DiscoveryItem{
			Type:      classifyDiscovery(href),
			Name:      name,
			URL:       href,
			ScrapedAt: now,
		})
		return true
	})
	if len(items) == 0 {
		return nil, fmt.Errorf("fallback found no discovery links")
	}
	return items, nil
}

// dedupeItems keeps the first occurrence of each (type, name) pair.
func dedupeItems(items []scrape.DiscoveryItem) []scrape.DiscoveryItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func classifyDiscovery(href string) string {
	lower := strings.ToLower(href)
	switch {
	case strings.Contains(lower, "/video/"):
		return scrape.DiscoveryVideo
	case strings.Contains(lower, "/@"):
		return scrape.DiscoveryProfile
	default:
		return scrape.DiscoveryCategory
	}
}

func lastPathSegment(href string) string {
	trimmed := strings.Trim(strings.SplitN(href, "?", 2)[0], "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
