package filter

import (
	"strings"

	"github.com/mixelka/mailhub/pkg/models"
)

// Predicate is the sender/receiver/body match applied to messages. Empty
// fields match everything.
type Predicate struct {
	Sender   string
	Receiver string
	Body     string // Alternatives separated by |
}

// ResolvePredicate returns the rule's own predicate, or the group's when the
// rule references one. Group values replace the rule's entirely.
func ResolvePredicate(rule *models.AccessRule, group *models.FilterGroup) Predicate {
	if group != nil {
		return Predicate{
			Sender:   group.MatchSender,
			Receiver: group.MatchReceiver,
			Body:     group.MatchBody,
		}
	}
	return Predicate{
		Sender:   rule.MatchSender,
		Receiver: rule.MatchReceiver,
		Body:     rule.MatchBody,
	}
}

// Normalizer produces the display text searched and shown for a message
type Normalizer interface {
	DisplayText(htmlBody, preview string) string
}

// Entry is a matching message with its display text
type Entry struct {
	Message models.Message
	Text    string
}

// Engine applies predicates to fetched messages
type Engine struct {
	normalizer Normalizer
}

// NewEngine creates a new filter engine
func NewEngine(normalizer Normalizer) *Engine {
	return &Engine{normalizer: normalizer}
}

// Apply keeps messages matching pred, in order, truncated to display entries
func (e *Engine) Apply(msgs []models.Message, pred Predicate, display int) []Entry {
	m := newMatcher(pred)
	entries := make([]Entry, 0, min(len(msgs), max(display, 0)))
	for _, msg := range msgs {
		if len(entries) >= display {
			break
		}
		if !m.header(msg) {
			continue
		}
		text := e.normalizer.DisplayText(msg.HTMLBody, msg.Preview)
		if !m.body(text) {
			continue
		}
		entries = append(entries, Entry{Message: msg, Text: text})
	}
	return entries
}

type matcher struct {
	sender   string
	receiver string
	keywords []string
}

func newMatcher(pred Predicate) matcher {
	m := matcher{
		sender:   strings.ToLower(strings.TrimSpace(pred.Sender)),
		receiver: strings.ToLower(strings.TrimSpace(pred.Receiver)),
	}
	for _, kw := range strings.Split(pred.Body, "|") {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			m.keywords = append(m.keywords, kw)
		}
	}
	return m
}

func (m matcher) header(msg models.Message) bool {
	if m.sender != "" && !strings.Contains(strings.ToLower(msg.Sender), m.sender) {
		return false
	}
	if m.receiver != "" && !strings.Contains(strings.ToLower(msg.Receiver), m.receiver) {
		return false
	}
	return true
}

func (m matcher) body(text string) bool {
	if len(m.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
