package nitter

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

var (
	numberPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+`)
	spacePattern  = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// blockElements end a line when rendered to text.
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "blockquote": true,
}

// Extractor turns mirror documents into posts. It holds no state beyond its rules,
// so one Extractor may be shared across goroutines.
type Extractor struct {
	rules Rules
}

// NewExtractor creates an extractor for rules.
func NewExtractor(rules Rules) *Extractor {
	return &Extractor{rules: rules}
}

// Extract returns at most maxCount posts found in doc, in document order.
// Unrecognized or malformed input yields no posts.
func (e *Extractor) Extract(doc string, maxCount int) []Post {
	if maxCount <= 0 || strings.TrimSpace(doc) == "" {
		return nil
	}
	if isFeed(doc) {
		if posts := e.extractFeed(doc, maxCount); len(posts) > 0 {
			return posts
		}
	}

	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	var posts []Post
	e.items(root.Selection).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if post, ok := e.post(item); ok {
			posts = append(posts, post)
		}
		return len(posts) < maxCount
	})
	return posts
}

// items locates candidate post elements, narrowing from the timeline container to the whole document.
func (e *Extractor) items(root *goquery.Selection) *goquery.Selection {
	exact := func(s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		for _, token := range strings.Fields(strings.ToLower(class)) {
			if containsString(e.rules.ItemClasses, token) {
				return true
			}
		}
		return false
	}
	tags := strings.Join(e.rules.ItemTags, ", ")

	if container := root.Find(e.rules.Container); container.Length() > 0 {
		if found := outermost(container.Find(tags).FilterFunction(func(_ int, s *goquery.Selection) bool { return exact(s) })); found.Length() > 0 {
			return found
		}
	}
	if found := outermost(root.Find(tags).FilterFunction(func(_ int, s *goquery.Selection) bool { return exact(s) })); found.Length() > 0 {
		return found
	}

	fallback := Matcher{Tags: e.rules.ItemTags, Markers: e.rules.ItemMarkers}
	return outermost(fallback.Find(root))
}

func (e *Extractor) post(item *goquery.Selection) (Post, bool) {
	text := e.content(item)
	if text == "" {
		return Post{}, false
	}

	post := Post{
		Text:      text,
		Timestamp: e.timestamp(item),
		Pinned:    e.rules.Pinned.Find(item).Length() > 0 || e.rules.Pinned.Match(item),
		SourceURL: e.sourceURL(item),
	}
	if stats := e.stats(item); len(stats) > 0 {
		post.Stats = stats
	}
	return post, true
}

func (e *Extractor) content(item *goquery.Selection) string {
	for _, m := range e.rules.Content {
		var text string
		m.Find(item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = renderText(s)
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return ""
}

func (e *Extractor) timestamp(item *goquery.Selection) string {
	el := e.rules.Timestamp.Find(item).First()
	if el.Length() == 0 {
		return UnknownTime
	}

	for _, attr := range e.rules.Timestamp.Attrs {
		if v := strings.TrimSpace(el.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	for _, attr := range e.rules.Timestamp.Attrs {
		if v := strings.TrimSpace(el.Find("["+attr+"]").First().AttrOr(attr, "")); v != "" {
			return v
		}
	}
	if v := cleanText(el.Text()); v != "" {
		return v
	}
	return UnknownTime
}

// stats reads the counters found under item. Only the innermost matching elements are read,
// so a wrapper around several counters is not classified as one of them. A counter without
// a keyword of its own takes the label of a wrapper that holds no other counter.
func (e *Extractor) stats(item *goquery.Selection) map[StatKind]int {
	stats := make(map[StatKind]int)
	e.rules.Stats.Find(item).Each(func(_ int, s *goquery.Selection) {
		if e.rules.Stats.Find(s).Length() > 0 {
			return
		}
		kind, ok := e.rules.classify(describe(s))
		if !ok {
			kind, ok = e.wrapperKind(item, s)
		}
		if !ok {
			return
		}
		if _, seen := stats[kind]; seen {
			return
		}
		if n, ok := firstNumber(s.Text()); ok {
			stats[kind] = n
		}
	})
	return stats
}

// wrapperKind classifies counter by its nearest matching ancestor below item, provided counter
// is the only innermost stat element inside it.
func (e *Extractor) wrapperKind(item, counter *goquery.Selection) (StatKind, bool) {
	for p := counter.Parent(); p.Length() > 0 && !p.IsSelection(item); p = p.Parent() {
		if !e.rules.Stats.Match(p) {
			continue
		}
		inner := e.rules.Stats.Find(p).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return e.rules.Stats.Find(s).Length() == 0
		})
		if inner.Length() != 1 {
			return "", false
		}
		return e.rules.classify(describe(p))
	}
	return "", false
}

func (e *Extractor) sourceURL(item *goquery.Selection) string {
	href, ok := item.Find(e.rules.StatusLink).First().Attr("href")
	if !ok {
		return ""
	}
	return canonicalURL(e.rules.CanonicalHost, href)
}

func (e *Extractor) extractFeed(doc string, maxCount int) []Post {
	feed, err := gofeed.NewParser().ParseString(doc)
	if err != nil {
		return nil
	}

	var posts []Post
	for _, item := range feed.Items {
		if len(posts) >= maxCount {
			break
		}
		text := ""
		if item.Description != "" {
			if d, err := goquery.NewDocumentFromReader(strings.NewReader(item.Description)); err == nil {
				text = renderText(d.Selection)
			}
		}
		if text == "" {
			text = cleanText(item.Title)
		}
		if text == "" {
			continue
		}

		post := Post{Text: text, Timestamp: UnknownTime}
		if ts := strings.TrimSpace(item.Published); ts != "" {
			post.Timestamp = ts
		}
		if item.Link != "" {
			post.SourceURL = canonicalURL(e.rules.CanonicalHost, item.Link)
		}
		posts = append(posts, post)
	}
	return posts
}

// isFeed reports whether doc looks like an RSS or Atom document rather than HTML.
func isFeed(doc string) bool {
	head := strings.ToLower(strings.TrimSpace(doc))
	head = strings.TrimPrefix(head, "\ufeff")
	return strings.HasPrefix(head, "<?xml") || strings.HasPrefix(head, "<rss") || strings.HasPrefix(head, "<feed")
}

// outermost drops elements nested inside another element of the same selection.
func outermost(sel *goquery.Selection) *goquery.Selection {
	nodes := make(map[*html.Node]bool, sel.Length())
	for _, n := range sel.Nodes {
		nodes[n] = true
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		for p := s.Nodes[0].Parent; p != nil; p = p.Parent {
			if nodes[p] {
				return false
			}
		}
		return true
	})
}

// describe returns the lowercased text of s together with the class names under it,
// so counters rendered as icons are still recognized.
func describe(s *goquery.Selection) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(s.Text()))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(s.AttrOr("class", "")))
	s.Find("[class]").Each(func(_ int, c *goquery.Selection) {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(c.AttrOr("class", "")))
	})
	return b.String()
}

func firstNumber(s string) (int, bool) {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// canonicalURL rewrites a mirror status link onto host, dropping query and fragment.
func canonicalURL(host, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Path == "" || !strings.Contains(u.Path, "/status/") {
		return ""
	}
	return strings.TrimRight(host, "/") + u.Path
}

// renderText returns the visible text of s with block boundaries kept as line breaks.
func renderText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return cleanText(b.String())
}

// cleanText trims every line, collapses runs of whitespace and drops blank lines.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
