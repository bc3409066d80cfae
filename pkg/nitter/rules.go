package nitter

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Matcher selects elements by tag and by case-insensitive class substring.
type Matcher struct {
	// Tags limits matching to these element names. Empty means any element.
	Tags []string
	// Markers are class substrings; an element matches when any class token contains one.
	Markers []string
	// Ignore lists class prefixes that never count as a marker hit, e.g. "timeline" for the "time" marker.
	Ignore []string
	// Attrs are read in order before falling back to visible text.
	Attrs []string
}

// Match reports whether s is an element this matcher accepts.
func (m Matcher) Match(s *goquery.Selection) bool {
	if len(m.Tags) > 0 && !containsString(m.Tags, goquery.NodeName(s)) {
		return false
	}
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(strings.ToLower(class)) {
		if hasPrefix(token, m.Ignore) {
			continue
		}
		for _, marker := range m.Markers {
			if strings.Contains(token, marker) {
				return true
			}
		}
	}
	return false
}

// Find returns the descendants of root accepted by the matcher, in document order.
func (m Matcher) Find(root *goquery.Selection) *goquery.Selection {
	sel := "*"
	if len(m.Tags) > 0 {
		sel = strings.Join(m.Tags, ", ")
	}
	return root.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return m.Match(s)
	})
}

// StatRule classifies a counter element into a stat kind.
type StatRule struct {
	Kind StatKind
	// Words match anywhere in the element's lowercased text or class names.
	Words []string
	// Pattern matches whole words only.
	Pattern *regexp.Regexp
}

// Rules is the extraction table. Mirror markup drift is absorbed by editing the table.
type Rules struct {
	// Container locates the timeline; item lookup is scoped to it when present.
	Container string
	// ItemClasses are exact class tokens that mark a post element.
	ItemClasses []string
	// ItemTags limits which elements may be a post.
	ItemTags []string
	// ItemMarkers are the substring fallback used when no exact item is found.
	ItemMarkers []string

	// Content matchers are tried in priority order; the first non-empty text wins.
	Content []Matcher

	Timestamp Matcher
	Stats     Matcher
	StatRules []StatRule
	Pinned    Matcher

	// StatusLink selects the link to the post on the mirror.
	StatusLink string
	// CanonicalHost is the origin status links are rewritten to.
	CanonicalHost string
}

// DefaultRules returns the table for nitter markup and close relatives.
func DefaultRules() Rules {
	return Rules{
		Container:   "div.timeline",
		ItemClasses: []string{"timeline-item", "tweet-card", "tweet"},
		ItemTags:    []string{"div", "article"},
		ItemMarkers: []string{"tweet", "timeline-item", "tweet-card"},
		Content: []Matcher{
			{Tags: []string{"div", "p"}, Markers: []string{"content"}},
			{Tags: []string{"div", "p"}, Markers: []string{"text"}},
			{Tags: []string{"div", "p"}, Markers: []string{"body"}},
		},
		Timestamp: Matcher{
			Tags:    []string{"span", "a", "time"},
			Markers: []string{"date", "time"},
			Ignore:  []string{"timeline"},
			Attrs:   []string{"title", "datetime"},
		},
		Stats: Matcher{
			Tags:    []string{"span", "div"},
			Markers: []string{"stat", "count", "activity"},
		},
		StatRules: []StatRule{
			{Kind: StatRetweets, Words: []string{"retweet", "转推", "repost"}, Pattern: regexp.MustCompile(`\brt\b`)},
			{Kind: StatLikes, Words: []string{"like", "喜欢", "heart", "favorite"}},
		},
		Pinned:        Matcher{Markers: []string{"pinned"}},
		StatusLink:    `a[href*="/status/"]`,
		CanonicalHost: "https://twitter.com",
	}
}

// classify returns the stat kind described by text, if any.
func (r Rules) classify(text string) (StatKind, bool) {
	for _, rule := range r.StatRules {
		for _, w := range rule.Words {
			if strings.Contains(text, w) {
				return rule.Kind, true
			}
		}
		if rule.Pattern != nil && rule.Pattern.MatchString(text) {
			return rule.Kind, true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
