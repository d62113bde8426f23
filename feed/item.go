package feed

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// PlaceholderTitle is used for entries without a usable title
	PlaceholderTitle = "(no title)"
	// ExcerptWords is the word budget of an excerpt
	ExcerptWords = 30
	excerptMore  = "…"
)

var (
	reImageSrc = regexp.MustCompile(`(?i)<img\s[^>]*src\s*=\s*["']([^"']+)["']`)
	strict     = bluemonday.StrictPolicy()
)

// Item is a normalized feed entry, ready to be cached and rendered
type Item struct {
	Date    int64  `json:"date"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Excerpt string `json:"excerpt"`
	Image   string `json:"image"`
	Source  string `json:"source"`
}

// Source is the feed level context every entry of a feed is normalized with
type Source struct {
	Label        string
	FallbackLink string
	ShowImage    bool
}

// NewSource builds the normalization context for a fetched feed. The label is only resolved if showSource is set.
func NewSource(f *Feed, showImage, showSource bool) Source {
	src := Source{
		FallbackLink: f.URL,
		ShowImage:    showImage,
	}
	if showSource {
		src.Label = sourceLabel(f)
	}
	return src
}

func sourceLabel(f *Feed) string {
	if label := StripTags(f.Title); label != "" {
		return label
	}
	u, err := url.Parse(f.URL)
	if err != nil {
		return ""
	}
	return StripTags(u.Hostname())
}

// Normalize converts a raw entry into an Item. Entries without a parseable date get now.
func Normalize(e Entry, src Source, now time.Time) Item {
	item := Item{
		Date:   now.Unix(),
		Title:  StripTags(e.Title),
		Link:   cleanURL(e.Link),
		Source: src.Label,
	}
	if e.Published != nil && !e.Published.IsZero() && e.Published.Unix() > 0 {
		item.Date = e.Published.Unix()
	}
	if item.Title == "" {
		item.Title = PlaceholderTitle
	}
	if item.Link == "" {
		item.Link = src.FallbackLink
	}

	desc := e.Description
	if strings.TrimSpace(desc) == "" {
		desc = e.Content
	}
	item.Excerpt = TrimWords(StripTags(desc), ExcerptWords)

	if src.ShowImage {
		item.Image = imageURL(e)
	}
	return item
}

// StripTags removes all markup from s and returns plain text with collapsed whitespace
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// TrimWords cuts s down to n words. Truncated text ends with an ellipsis.
func TrimWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + excerptMore
}

func imageURL(e Entry) string {
	if img := cleanURL(e.EnclosureURL); img != "" {
		return img
	}
	body := e.Content
	if body == "" {
		body = e.Description
	}
	m := reImageSrc.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return cleanURL(html.UnescapeString(m[1]))
}

// cleanURL returns raw if it is an absolute http(s) URL and an empty string otherwise
func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
