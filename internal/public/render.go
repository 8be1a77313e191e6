package public

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mixelka/mailhub/internal/parser"
)

const (
	// EmptyResult is rendered when no message matches
	EmptyResult = "no matching messages"

	timestampLayout = "2006/1/2 15:04:05"
)

// Renderer renders resolved shares as plain text or HTML
type Renderer struct {
	location *time.Location
	detector *parser.CodeDetector
	policy   *bluemonday.Policy
}

// NewRenderer creates a renderer that shows timestamps in loc
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	policy := bluemonday.NewPolicy()
	policy.AllowElements("article", "p", "code", "time", "h1", "main")
	policy.AllowAttrs("datetime").OnElements("time")

	return &Renderer{
		location: loc,
		detector: parser.NewCodeDetector(),
		policy:   policy,
	}
}

func (r *Renderer) timestamp(t time.Time) string {
	return t.In(r.location).Format(timestampLayout)
}

// RenderText renders one "timestamp | text" block per message
func (r *Renderer) RenderText(res *Result) string {
	if res == nil || len(res.Entries) == 0 {
		return EmptyResult
	}
	blocks := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		blocks = append(blocks, r.timestamp(e.Message.ReceivedAt)+" | "+e.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// RenderHTML renders a minimal HTML page with verification codes highlighted
func (r *Renderer) RenderHTML(res *Result) string {
	title := "Messages"
	if res != nil && res.Rule != nil && res.Rule.Alias != "" {
		title = res.Rule.Alias
	}

	var body strings.Builder
	body.WriteString("<main><h1>" + html.EscapeString(title) + "</h1>")
	if res == nil || len(res.Entries) == 0 {
		body.WriteString("<p>" + EmptyResult + "</p>")
	}
	if res != nil {
		for _, e := range res.Entries {
			body.WriteString("<article><time datetime=\"")
			body.WriteString(e.Message.ReceivedAt.UTC().Format(time.RFC3339))
			body.WriteString("\">")
			body.WriteString(r.timestamp(e.Message.ReceivedAt))
			body.WriteString("</time><p>")
			body.WriteString(r.detector.Highlight(html.EscapeString(e.Text)))
			body.WriteString("</p></article>")
		}
	}
	body.WriteString("</main>")

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
	sb.WriteString("<title>" + html.EscapeString(title) + "</title>")
	sb.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}article{border-bottom:1px solid #ddd;padding:.5rem 0}time{color:#666;font-size:.9em}code{background:#ffe;font-weight:bold;padding:0 .2em}</style>")
	sb.WriteString("</head><body>")
	sb.WriteString(r.policy.Sanitize(body.String()))
	sb.WriteString("</body></html>\n")
	return sb.String()
}
