package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MetadataUnitType is the metadata key carrying the unit sub-type
// ("quote", a post type, or a discovery type) on every normalized record.
const MetadataUnitType = "unit_type"

// Registered source names. Each is also a job type.
const (
	SourceQuotes = "quotes"
	SourceReddit = "reddit"
	SourceTikTok = "tiktok"
)

// Quote is a single extracted quote prior to normalization.
type Quote struct {
	Text   string   `json:"text"`
	Author string   `json:"author"`
	Tags   []string `json:"tags"`
}

// RedditPost is a single extracted discussion post prior to normalization.
type RedditPost struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Subreddit string    `json:"subreddit"`
	Upvotes   int       `json:"upvotes"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
	PostType  string    `json:"post_type"`
	Content   string    `json:"content,omitempty"`
	LinkURL   string    `json:"link_url,omitempty"`
}

// Post types recognized for reddit units.
const (
	PostTypeText  = "text"
	PostTypeLink  = "link"
	PostTypeImage = "image"
	PostTypeVideo = "video"
)

// DiscoveryItem is a single extracted discovery entry prior to normalization.
type DiscoveryItem struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Text      string    `json:"text,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Discovery item types.
const (
	DiscoveryVideo    = "video"
	DiscoveryProfile  = "profile"
	DiscoveryCategory = "category"
)

// Key is the composite de-duplication key for discovery items.
func (d DiscoveryItem) Key() string {
	return d.Type + "\x00" + d.Name
}

// NormalizeQuote validates a quote unit and converts it to a Record.
func NormalizeQuote(q Quote, sourceURL string, at time.Time) (Record, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Record{}, errors.New("quote text is required")
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return Record{}, fmt.Errorf("marshal quote: %w", err)
	}
	body := q.Text
	if q.Author != "" {
		body = fmt.Sprintf("%s\n— %s", q.Text, q.Author)
	}
	return Record{
		Source:     SourceQuotes,
		SourceURL:  sourceURL,
		Title:      q.Author,
		Body:       body,
		RawPayload: string(raw),
		ScrapedAt:  at,
		Metadata: map[string]string{
			MetadataUnitType: "quote",
			"author":         q.Author,
			"tags":           strings.Join(q.Tags, ","),
		},
	}, nil
}

// NormalizeRedditPost validates a post unit and converts it to a Record.
func NormalizeRedditPost(p RedditPost, sourceURL string, at time.Time) (Record, error) {
	if strings.TrimSpace(p.Title) == "" {
		return Record{}, errors.New("post title is required")
	}
	switch p.PostType {
	case PostTypeText, PostTypeLink, PostTypeImage, PostTypeVideo:
	default:
		return Record{}, fmt.Errorf("unknown post type %q", p.PostType)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Record{}, fmt.Errorf("marshal post: %w", err)
	}
	body := p.Title
	if p.Content != "" {
		body = fmt.Sprintf("%s\n\n%s", p.Title, p.Content)
	}
	return Record{
		Source:     SourceReddit,
		SourceURL:  sourceURL,
		Title:      p.Title,
		Body:       body,
		RawPayload: string(raw),
		ScrapedAt:  at,
		Metadata: map[string]string{
			MetadataUnitType: p.PostType,
			"post_id":        p.ID,
			"author":         p.Author,
			"subreddit":      p.Subreddit,
			"upvotes":        fmt.Sprintf("%d", p.Upvotes),
			"comments":       fmt.Sprintf("%d", p.Comments),
			"url":            p.URL,
		},
	}, nil
}

// NormalizeDiscoveryItem validates a discovery unit and converts it to a Record.
func NormalizeDiscoveryItem(d DiscoveryItem, sourceURL string) (Record, error) {
	if strings.TrimSpace(d.Name) == "" {
		return Record{}, errors.New("discovery item name is required")
	}
	switch d.Type {
	case DiscoveryVideo, DiscoveryProfile, DiscoveryCategory:
	default:
		return Record{}, fmt.Errorf("unknown discovery type %q", d.Type)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return Record{}, fmt.Errorf("marshal discovery item: %w", err)
	}
	body := d.Name
	if d.Text != "" {
		body = fmt.Sprintf("%s\n%s", d.Name, d.Text)
	}
	at := d.ScrapedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Record{
		Source:     SourceTikTok,
		SourceURL:  sourceURL,
		Title:      d.Name,
		Body:       body,
		RawPayload: string(raw),
		ScrapedAt:  at,
		Metadata: map[string]string{
			MetadataUnitType: d.Type,
			"url":            d.URL,
		},
	}, nil
}
