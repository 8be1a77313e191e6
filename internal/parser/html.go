package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NoPreview is shown when a message has neither HTML nor preview text
const NoPreview = "(no preview)"

const blockElements = "p, div, br, hr, h1, h2, h3, h4, h5, h6, li, ul, ol, tr, td, th, table, blockquote, pre, section, article, header, footer"

// Normalizer turns message bodies into the single-line display text that
// filtering and rendering both operate on
type Normalizer struct {
	whitespaceRegex *regexp.Regexp
	invisibleRegex  *regexp.Regexp
}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespaceRegex: regexp.MustCompile(`\s+`),
		// Zero-width spaces, soft hyphens, BOM and similar
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}\x{FFF0}-\x{FFF8}]+`),
	}
}

// DisplayText returns the normalized text of a message, falling back to the
// preview when the HTML body is empty
func (n *Normalizer) DisplayText(htmlBody, preview string) string {
	if strings.TrimSpace(htmlBody) != "" {
		if text, err := n.Parse(htmlBody); err == nil && text != "" {
			return text
		}
	}
	if text := n.clean(preview); text != "" {
		return text
	}
	return NoPreview
}

// Parse converts HTML to normalized plain text
func (n *Normalizer) Parse(body string) (string, error) {
	if body == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()

	// Keep link targets visible
	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href := strings.TrimSpace(s.AttrOr("href", ""))
		switch {
		case href == "":
			s.ReplaceWithHtml(html.EscapeString(text))
		case text == "":
			s.ReplaceWithHtml(html.EscapeString(href))
		default:
			s.ReplaceWithHtml(html.EscapeString(text + " (" + href + ")"))
		}
	})

	// Separate block elements so adjacent words do not merge
	doc.Find(blockElements).Each(func(i int, s *goquery.Selection) {
		s.PrependHtml(" ")
		s.AppendHtml(" ")
	})

	return n.clean(doc.Text()), nil
}

func (n *Normalizer) clean(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = n.invisibleRegex.ReplaceAllString(text, "")
	text = n.whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
