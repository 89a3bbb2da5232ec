// Package htmltext converts post HTML bodies into plain text suitable
// for corpus building.
package htmltext

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	pairedPunctuation = regexp.MustCompile(`[\[\](){}"‘’“”«»„]`)
	leadingMention    = regexp.MustCompile(`^@\S+\s`)
)

// Extract flattens a post's HTML into text: <br> and <p> become line
// breaks, hashtag and mention links keep their visible text, other links
// collapse to their href.
func Extract(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse post html: %w", err)
	}

	doc.Find("span.invisible").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	doc.Find("a.hashtag, a.mention").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})

	// Posts routinely ellipsize long URLs in the anchor text; the href
	// is the real content.
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			s.ReplaceWithHtml(html.EscapeString(href))
		}
	})

	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n" + html.EscapeString(s.Text()) + "\n")
	})

	return strings.TrimSpace(doc.Text()), nil
}

// SanitizeMentions puts a zero-width space after every @ so a generated
// post never actually mentions anyone.
func SanitizeMentions(text string) string {
	return strings.ReplaceAll(text, "@", "@​")
}

// StripPairedPunctuation drops brackets and quote marks, which a
// word-chain model almost never closes properly.
func StripPairedPunctuation(text string) string {
	return pairedPunctuation.ReplaceAllString(text, "")
}

// StripLeadingMention removes the initial @user from a mention body so
// command keywords can be matched.
func StripLeadingMention(text string) string {
	return leadingMention.ReplaceAllString(text, "")
}
