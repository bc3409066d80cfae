package summarize

import (
	"strings"
	"unicode/utf8"
)

const paragraphSep = "\n\n"

// Paginate splits text into pages of at most limit characters, breaking between paragraphs
// where possible. The first paragraph stays at the top of the first page. A single paragraph
// longer than limit is cut at character boundaries.
func Paginate(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var pages []string
	current := ""
	for _, paragraph := range strings.Split(text, paragraphSep) {
		for _, piece := range splitRunes(paragraph, limit) {
			switch {
			case current == "":
				current = piece
			case utf8.RuneCountInString(current)+len(paragraphSep)+utf8.RuneCountInString(piece) > limit:
				pages = append(pages, current)
				current = piece
			default:
				current += paragraphSep + piece
			}
		}
	}
	if strings.TrimSpace(current) != "" {
		pages = append(pages, current)
	}
	return pages
}

func splitRunes(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	runes := []rune(s)
	var out []string
	for len(runes) > limit {
		out = append(out, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
