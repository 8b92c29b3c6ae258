package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

// Ordered pattern lists; the first match wins and stops the scan.
var confirmationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)confirmation\s*(?:number|#)?\s*:?\s*([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)order\s*(?:number|#)?\s*:?\s*([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)booking\s*(?:reference|#)?\s*:?\s*([A-Z0-9]+)`),
}

var costPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)total\s*:?\s*\$?\s*([0-9]+(?:\.[0-9]+)?)`),
	regexp.MustCompile(`(?i)amount\s*:?\s*\$?\s*([0-9]+(?:\.[0-9]+)?)`),
}

// Confirmation is what a post-submission page gave up: a reference
// number and a total when the patterns found them, plus the full
// visible page text for human review (truncated downstream by the
// email renderer, never here).
type Confirmation struct {
	Number    string
	TotalCost float64
	FullText  string
}

// ExtractConfirmation scans a post-submission page for booking
// evidence. Missing pieces stay zero-valued; this never fails.
func ExtractConfirmation(html string) Confirmation {
	conf := Confirmation{FullText: strings.TrimSpace(StripHTML(html))}

	for _, pat := range confirmationPatterns {
		if m := pat.FindStringSubmatch(html); m != nil {
			conf.Number = m[1]
			break
		}
	}
	for _, pat := range costPatterns {
		m := pat.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		if cost, err := strconv.ParseFloat(m[1], 64); err == nil {
			conf.TotalCost = cost
			break
		}
	}
	return conf
}

// Details renders the confirmation as the per-result detail mapping.
func (c Confirmation) Details() map[string]string {
	details := make(map[string]string, 3)
	if c.Number != "" {
		details["number"] = c.Number
	}
	if c.TotalCost > 0 {
		details["total_cost"] = strconv.FormatFloat(c.TotalCost, 'f', -1, 64)
	}
	if c.FullText != "" {
		details["full_content"] = c.FullText
	}
	return details
}
