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

// Default mirrors for the quotes source, scraper-friendliest first.
var quotesMirrors = []string{
	"http://quotes.toscrape.com",
	"https://quotes.toscrape.com",
}

var quotesPredicate = Predicate{
	Markers:      []string{"div.quote", ".quote"},
	TitleKeyword: "quotes",
}

var (
	quoteTextSpec   = FieldSpec{Selectors: []string{"span.text", ".text", "blockquote"}}
	quoteAuthorSpec = FieldSpec{Selectors: []string{"small.author", ".author"}, Default: "Unknown"}
)

// Quotes extracts quote units across paginated listing pages.
type Quotes struct {
	nav       *Navigator
	clock     scrape.Clock
	logger    *zap.Logger
	pageDelay time.Duration
}

// NewQuotes builds the quotes strategy. pageDelay is the polite wait between
// page requests.
func NewQuotes(nav *Navigator, clock scrape.Clock, pageDelay time.Duration, logger *zap.Logger) *Quotes {
	if pageDelay <= 0 {
		pageDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quotes{nav: nav, clock: clock, logger: logger, pageDelay: pageDelay}
}

// Source returns the job type this strategy serves.
func (s *Quotes) Source() string { return scrape.SourceQuotes }

// Extract walks pages 1..MaxPages, stopping early when a page yields zero
// quotes. A page with no quote containers on the first page triggers the
// coarse fallback parse instead of failing the job.
func (s *Quotes) Extract(
	ctx context.Context,
	sess scrape.Session,
	params scrape.JobParameters,
	report func(percent int),
) (scrape.Extraction, error) {
	candidates := quotesMirrors
	if params.URL != "" {
		candidates = append([]string{params.URL}, quotesMirrors...)
	}

	resolved, err := s.nav.Resolve(ctx, sess, s.Source(), candidates, quotesPredicate)
	if err != nil {
		return scrape.Extraction{}, err
	}
	report(50)

	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	maxItems := params.MaxItems
	if maxItems <= 0 {
		maxItems = 100
	}

	var quotes []scrape.Quote
	doc := resolved.Doc
	for page := 1; page <= maxPages && len(quotes) < maxItems; page++ {
		if page > 1 {
			if err := s.pause(ctx); err != nil {
				return scrape.Extraction{}, err
			}
			doc, err = s.nav.Fetch(ctx, sess, pageURL(resolved.URL, page))
			if err != nil {
				return scrape.Extraction{}, err
			}
		}

		pageQuotes, err := s.extractPrimary(doc, maxItems-len(quotes))
		if err != nil {
			if page > 1 {
				// Later pages with unexpected markup mean "no more pages".
				break
			}
			s.logger.Warn("primary quote extraction failed, falling back",
				zap.String("url", resolved.URL), zap.Error(err))
			pageQuotes, err = s.extractFallback(doc, maxItems)
			if err != nil {
				return scrape.Extraction{}, &scrape.BatchExtractionError{Source: s.Source(), Err: err}
			}
		}
		if len(pageQuotes) == 0 {
			break
		}
		quotes = append(quotes, pageQuotes...)
	}
	report(75)

	now := s.clock.Now()
	records := make([]scrape.Record, 0, len(quotes))
	for _, q := range quotes {
		rec, err := scrape.NormalizeQuote(q, resolved.URL, now)
		if err != nil {
			s.logger.Warn("skipping malformed quote", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	extraction := scrape.Extraction{Records: records}
	if len(records) > 0 {
		extraction.Top = truncate(records[0].Body, 80)
	}
	return extraction, nil
}

// extractPrimary parses quote containers. A single malformed quote is
// skipped; a page with no recognizable containers is a batch-level error.
func (s *Quotes) extractPrimary(doc *goquery.Document, limit int) ([]scrape.Quote, error) {
	containers := doc.Find("div.quote")
	if containers.Length() == 0 {
		if looksLikeEmptyListing(doc) {
			// Valid listing shell with nothing in it: no more pages.
			return nil, nil
		}
		return nil, fmt.Errorf("no quote containers found")
	}

	var quotes []scrape.Quote
	containers.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(quotes) >= limit {
			return false
		}
		text := strings.Trim(ExtractField(sel, quoteTextSpec), "“”\"")
		if text == "" {
			s.logger.Debug("skipping quote with empty text")
			return true
		}
		var tags []string
		sel.Find("a.tag").Each(func(_ int, tag *goquery.Selection) {
			if t := strings.TrimSpace(tag.Text()); t != "" {
				tags = append(tags, t)
			}
		})
		quotes = append(quotes, scrape.Quote{
			Text:   text,
			Author: ExtractField(sel, quoteAuthorSpec),
			Tags:   tags,
		})
		return true
	})
	return quotes, nil
}

// extractFallback performs a much coarser parse so the job still returns
// some signal: any blockquote-ish text, author unknown, no tags.
func (s *Quotes) extractFallback(doc *goquery.Document, limit int) ([]scrape.Quote, error) {
	var quotes []scrape.Quote
	doc.Find("blockquote, span.text, .text").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(quotes) >= limit {
			return false
		}
		text := strings.Trim(strings.TrimSpace(sel.Text()), "“”\"")
		if text == "" {
			return true
		}
		quotes = append(quotes, scrape.Quote{Text: text, Author: "Unknown"})
		return true
	})
	if len(quotes) == 0 {
		return nil, fmt.Errorf("fallback found no quote text")
	}
	return quotes, nil
}

func (s *Quotes) pause(ctx context.Context) error {
	timer := time.NewTimer(s.pageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("page delay canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// looksLikeEmptyListing distinguishes "valid page, no more quotes" from
// unexpected markup: the listing shell renders without quote containers.
func looksLikeEmptyListing(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "quotes")
}

func pageURL(base string, page int) string {
	return fmt.Sprintf("%s/page/%d/", strings.TrimRight(base, "/"), page)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
