package guard

import (
	"fmt"
	"net/url"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// DefaultAnomalyPatterns flags probing for secrets, traversal, SQL and script injection.
var DefaultAnomalyPatterns = []string{
	`(?i)/\.env`,
	`(?i)/\.git(/|$)`,
	`(?i)/wp-(admin|login|content|includes)`,
	`(?i)/phpmyadmin`,
	`(?i)/xmlrpc\.php`,
	`(?i)/(config|settings|database)\.(php|ya?ml|json|ini)`,
	`(?i)/etc/(passwd|shadow)`,
	`\.\./`,
	`\.\.\\`,
	`(?i)\bunion\b[\s+(/*]+(all[\s+]+)?select\b`,
	`(?i)\b(drop|truncate|alter)[\s+]+table\b`,
	`(?i);\s*(drop|delete|insert|update|shutdown)\b`,
	`(?i)'\s*(or|and)\s*'?\d+'?\s*=\s*'?\d+`,
	`(?i)\bor[\s+]+1[\s+]*=[\s+]*1\b`,
	`(?i)<\s*script`,
	`(?i)javascript:`,
	`(?i)\bon(error|load|mouseover)\s*=`,
}

// AnomalyDetector matches request targets against attack signatures.
type AnomalyDetector struct {
	patterns []*regexp.Regexp
}

// NewAnomalyDetector compiles patterns once at startup.
func NewAnomalyDetector(patterns []string) (*AnomalyDetector, error) {
	d := &AnomalyDetector{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("guard: anomaly pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// Match checks the full URL, raw, percent-decoded and NFKC-folded, and
// returns the first pattern that hits.
func (d *AnomalyDetector) Match(u *url.URL) (string, bool) {
	if d == nil || u == nil {
		return "", false
	}
	target := u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	candidates := []string{target}
	decoded, err := url.QueryUnescape(target)
	if err != nil {
		decoded = target
	} else if decoded != target {
		candidates = append(candidates, decoded)
	}
	// Fullwidth and compatibility forms such as U+FF0E fold to ASCII.
	if folded := norm.NFKC.String(decoded); folded != decoded {
		candidates = append(candidates, folded)
	}
	if u.Path != "" && u.Path != target {
		candidates = append(candidates, u.Path)
	}
	for _, candidate := range candidates {
		for _, re := range d.patterns {
			if re.MatchString(candidate) {
				return re.String(), true
			}
		}
	}
	return "", false
}
