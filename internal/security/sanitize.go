package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type redactRule struct {
	label string
	re    *regexp.Regexp
}

// builtinRedactRules cover the credential shapes that leak through tool
// output: provider keys, auth headers, tokens, connection strings, key
// material, and common PII.
var builtinRedactRules = []redactRule{
	{"anthropic_api_key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{16,}`)},
	{"openai_api_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"aws_access_key", regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`)},
	{"telegram_bot_token", regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`)},
	{"bearer_auth", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{8,}=*`)},
	{"basic_auth", regexp.MustCompile(`(?i)\bbasic\s+[A-Za-z0-9+/]{16,}={0,2}`)},
	{"db_connection", regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s:@]+:[^\s@]+@[^\s]+`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
}

// OutputSanitizer replaces sensitive substrings in tool and model output
// with labelled redaction markers. Sanitizing already-sanitized text is a
// no-op, so output can safely pass through more than once.
type OutputSanitizer struct {
	rules []redactRule
}

// NewOutputSanitizer builds a sanitizer from the built-in rules plus custom
// label -> pattern pairs from configuration.
func NewOutputSanitizer(custom map[string]string) (*OutputSanitizer, error) {
	rules := make([]redactRule, 0, len(builtinRedactRules)+len(custom))
	rules = append(rules, builtinRedactRules...)

	labels := make([]string, 0, len(custom))
	for label := range custom {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		pattern := strings.TrimSpace(custom[label])
		if pattern == "" {
			return nil, fmt.Errorf("redact pattern %q is empty", label)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", label, err)
		}
		rules = append(rules, redactRule{label: label, re: re})
	}
	return &OutputSanitizer{rules: rules}, nil
}

// Sanitize replaces every match with [REDACTED:<label>] and returns the
// labels that matched, deduplicated in rule order.
func (s *OutputSanitizer) Sanitize(text string) (string, []string) {
	var matched []string
	for _, rule := range s.rules {
		if !rule.re.MatchString(text) {
			continue
		}
		text = rule.re.ReplaceAllString(text, "[REDACTED:"+rule.label+"]")
		matched = append(matched, rule.label)
	}
	return text, matched
}
