package parser

import (
	"regexp"
	"sort"
	"strings"
)

// DetectedCode is a verification code found in message text
type DetectedCode struct {
	Type  string
	Value string
}

// CodeDetector detects verification codes in text
type CodeDetector struct {
	patterns []*codePattern
}

type codePattern struct {
	Type  string
	Regex *regexp.Regexp
}

// NewCodeDetector creates a new code detector
func NewCodeDetector() *CodeDetector {
	return &CodeDetector{
		patterns: []*codePattern{
			// OTP codes with keyword (4-8 digits)
			{
				Type:  "otp",
				Regex: regexp.MustCompile(`(?i)(?:code|验证码|校验码|otp|pin|passcode|password)(?:\s+is)?[\s:：\-是为]*(\d{4,8})\b`),
			},
			{
				Type:  "verification",
				Regex: regexp.MustCompile(`(?i)(?:verification|verify|confirm|activation)[\s\w]*?[\s:\-]*(\d{4,8})\b`),
			},
			// Alphanumeric codes (like reset tokens)
			{
				Type:  "code",
				Regex: regexp.MustCompile(`(?i)(?:code|验证码)(?:\s+is)?[\s:：\-]*([A-Z0-9]{4,12})\b`),
			},
			{
				Type:  "security",
				Regex: regexp.MustCompile(`(?i)(?:security|2fa|two.factor)[\s\w]*?[\s:\-]*(\d{4,8})\b`),
			},
		},
	}
}

// DetectCodes finds all verification codes in text
func (d *CodeDetector) DetectCodes(text string) []DetectedCode {
	var codes []DetectedCode
	seen := make(map[string]bool)

	for _, pattern := range d.patterns {
		matches := pattern.Regex.FindAllStringSubmatch(text, -1)
		for _, match := range matches {
			if len(match) < 2 {
				continue
			}
			code := strings.TrimSpace(match[1])
			if seen[code] || len(code) < 4 {
				continue
			}
			// Bare words after "code" are not codes
			if !strings.ContainsAny(code, "0123456789") {
				continue
			}
			seen[code] = true
			codes = append(codes, DetectedCode{
				Type:  pattern.Type,
				Value: code,
			})
		}
	}

	return codes
}

// Highlight wraps every detected code in already escaped HTML text with <code>
func (d *CodeDetector) Highlight(escaped string) string {
	codes := d.DetectCodes(escaped)
	if len(codes) == 0 {
		return escaped
	}

	values := make([]string, 0, len(codes))
	for _, c := range codes {
		values = append(values, regexp.QuoteMeta(c.Value))
	}
	// Longest first so a code never matches inside a longer one
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

	re := regexp.MustCompile(`\b(?:` + strings.Join(values, "|") + `)\b`)
	return re.ReplaceAllString(escaped, "<code>$0</code>")
}
