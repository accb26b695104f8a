package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

const (
	oldRedditHost  = "old.reddit.com"
	defaultListing = "https://old.reddit.com/r/popular/"
)

var redditPredicate = Predicate{
	Markers:      []string{"div.thing", "#siteTable", "shreddit-post"},
	TitleKeyword: "reddit",
}

var (
	redditTitleSpec    = FieldSpec{Selectors: []string{"a.title", "p.title a", "h3"}}
	redditAuthorSpec   = FieldSpec{Selectors: []string{"a.author", ".author"}, Default: "[deleted]"}
	redditScoreSpec    = FieldSpec{Selectors: []string{"div.score.unvoted", ".score"}, Default: "0"}
	redditCommentsSpec = FieldSpec{Selectors: []string{"a.comments", ".comments"}, Default: "0"}
)

// Reddit extracts discussion posts from a subreddit listing. The candidate
// ladder tries the old-markup mirror before the canonical site because the
// old mirror serves server-rendered listings that survive header disguise.
type Reddit struct {
	nav    *Navigator
	clock  scrape.Clock
	logger *zap.Logger
}

// NewReddit builds the reddit strategy.
func NewReddit(nav *Navigator, clock scrape.Clock, logger *zap.Logger) *Reddit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reddit{nav: nav, clock: clock, logger: logger}
}

// Source returns the job type this strategy serves.
func (s *Reddit) Source() string { return scrape.SourceReddit }

// Extract resolves the listing through the candidate ladder, runs the
// primary structural parse, and degrades to a titles-only fallback when the
// primary selectors match nothing at all.
func (s *Reddit) Extract(
	ctx context.Context,
	sess scrape.Session,
	params scrape.JobParameters,
	report func(percent int),
) (scrape.Extraction, error) {
	target := params.URL
	if target == "" {
		target = defaultListing
	}

	resolved, err := s.nav.Resolve(ctx, sess, s.Source(), candidateLadder(target), redditPredicate)
	if err != nil {
		return scrape.Extraction{}, err
	}
	report(50)

	maxItems := params.MaxItems
	if maxItems <= 0 {
		maxItems = 25
	}

	posts, err := s.extractPrimary(resolved.Doc, maxItems)
	if err != nil {
		s.logger.Warn("primary post extraction failed, falling back",
			zap.String("url", resolved.URL), zap.Error(err))
		posts, err = s.extractFallback(resolved.Doc, maxItems)
		if err != nil {
			return scrape.Extraction{}, &scrape.BatchExtractionError{Source: s.Source(), Err: err}
		}
	}
	report(75)

	now := s.clock.Now()
	records := make([]scrape.Record, 0, len(posts))
	for _, p := range posts {
		rec, err := scrape.NormalizeRedditPost(p, resolved.URL, now)
		if err != nil {
			s.logger.Warn("skipping malformed post", zap.String("post_id", p.ID), zap.Error(err))
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

// extractPrimary parses full post containers. One malformed post is skipped
// and the loop continues; zero recognizable containers is a batch error.
func (s *Reddit) extractPrimary(doc *goquery.Document, limit int) ([]scrape.RedditPost, error) {
	containers := doc.Find("div.thing")
	if containers.Length() == 0 {
		containers = doc.Find("shreddit-post")
	}
	if containers.Length() == 0 {
		return nil, fmt.Errorf("no post containers found")
	}

	var posts []scrape.RedditPost
	containers.EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(posts) >= limit {
			return false
		}
		post, err := s.parsePost(sel, i)
		if err != nil {
			s.logger.Debug("skipping post", zap.Int("index", i), zap.Error(err))
			return true
		}
		posts = append(posts, post)
		return true
	})
	return posts, nil
}

func (s *Reddit) parsePost(sel *goquery.Selection, index int) (scrape.RedditPost, error) {
	title := ExtractField(sel, redditTitleSpec)
	if title == "" {
		title = ExtractAttr(sel, []string{"post-title"}, "")
	}
	if title == "" {
		return scrape.RedditPost{}, fmt.Errorf("post %d has no title", index)
	}

	id := ExtractAttr(sel, []string{"data-fullname", "id"}, fmt.Sprintf("post-%d", index))
	dataURL := ExtractAttr(sel, []string{"data-url", "content-href"}, "")
	permalink := ExtractAttr(sel, []string{"data-permalink", "permalink"}, dataURL)

	post := scrape.RedditPost{
		ID:        id,
		Title:     title,
		Author:    ExtractAttr(sel, []string{"data-author", "author"}, ExtractField(sel, redditAuthorSpec)),
		Subreddit: strings.TrimPrefix(ExtractAttr(sel, []string{"data-subreddit", "subreddit-name"}, ""), "r/"),
		Upvotes:   ParseCount(ExtractAttr(sel, []string{"data-score", "score"}, ExtractField(sel, redditScoreSpec))),
		Comments:  ParseCount(ExtractAttr(sel, []string{"data-comments-count", "comment-count"}, ExtractField(sel, redditCommentsSpec))),
		CreatedAt: parseTimestamp(sel, s.clock.Now()),
		URL:       permalink,
		PostType:  classifyPostType(sel, dataURL),
	}
	if post.PostType == scrape.PostTypeText {
		post.Content = strings.TrimSpace(sel.Find("div.usertext-body, .md").First().Text())
	} else {
		post.LinkURL = dataURL
	}
	return post, nil
}

// extractFallback recovers titles only so the job still returns some signal.
// Identifiers are synthesized and numeric fields zeroed.
func (s *Reddit) extractFallback(doc *goquery.Document, limit int) ([]scrape.RedditPost, error) {
	var posts []scrape.RedditPost
	now := s.clock.Now()
	doc.Find("a.title, p.title a, h3, h2").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(posts) >= limit {
			return false
		}
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return true
		}
		posts = append(posts, scrape.RedditPost{
			ID:        fmt.Sprintf("fallback-%d", len(posts)),
			Title:     title,
			Author:    "[unknown]",
			CreatedAt: now,
			PostType:  scrape.PostTypeText,
		})
		return true
	})
	if len(posts) == 0 {
		return nil, fmt.Errorf("fallback found no post titles")
	}
	return posts, nil
}

// candidateLadder orders alternates for the same logical listing: the
// old-markup mirror first, then the canonical host.
func candidateLadder(target string) []string {
	if strings.Contains(target, oldRedditHost) {
		return []string{target, strings.Replace(target, oldRedditHost, "www.reddit.com", 1)}
	}
	old := strings.Replace(target, "www.reddit.com", oldRedditHost, 1)
	old = strings.Replace(old, "://reddit.com", "://"+oldRedditHost, 1)
	if old == target {
		return []string{target}
	}
	return []string{old, target}
}

func classifyPostType(sel *goquery.Selection, dataURL string) string {
	if sel.HasClass("self") || strings.Contains(ExtractAttr(sel, []string{"data-domain"}, ""), "self.") {
		return scrape.PostTypeText
	}
	lower := strings.ToLower(dataURL)
	switch {
	case lower == "" || strings.HasPrefix(lower, "/r/"):
		return scrape.PostTypeText
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"),
		strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".gif"),
		strings.Contains(lower, "i.redd.it"), strings.Contains(lower, "imgur.com"):
		return scrape.PostTypeImage
	case strings.Contains(lower, "v.redd.it"), strings.Contains(lower, "youtube.com"),
		strings.Contains(lower, "youtu.be"):
		return scrape.PostTypeVideo
	default:
		return scrape.PostTypeLink
	}
}

func parseTimestamp(sel *goquery.Selection, fallback time.Time) time.Time {
	raw := ExtractAttr(sel, []string{"data-timestamp", "created-timestamp"}, "")
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC()
	}
	return fallback
}
