package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PageAnalysis is the advisory structure a model returns for a page.
// Selectors in it are hints only; callers must check them against the
// live DOM before acting on them.
type PageAnalysis struct {
	FormSelectors  []string `json:"form_selectors"`
	TicketElements []string `json:"ticket_elements"`
	SubmitButton   string   `json:"submit_button"`
	RequiredFields []string `json:"required_fields"`
	CaptchaPresent bool     `json:"captcha_present"`
	NextSteps      []string `json:"next_steps"`
	Warnings       []string `json:"warnings"`
}

// ParseError marks a model reply that could not be decoded. Callers
// switch to their deterministic fallback on it instead of failing.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparseable model reply: " + e.Reason
}

// stripFences removes a markdown code fence around a reply. Models
// often wrap JSON in ```json ... ``` despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ParseObject decodes a reply expected to be a flat JSON object of
// field name to value. Non-string values are stringified so a model
// answering {"qty": 3} still fills the form.
func ParseObject(reply string) (map[string]string, error) {
	clean := stripFences(reply)
	if clean == "" {
		return nil, &ParseError{Reason: "empty reply"}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = fmt.Sprintf("%t", val)
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

// ParseAnalysis decodes a page-analysis reply.
func ParseAnalysis(reply string) (*PageAnalysis, error) {
	clean := stripFences(reply)
	if clean == "" {
		return nil, &ParseError{Reason: "empty reply"}
	}
	var a PageAnalysis
	if err := json.Unmarshal([]byte(clean), &a); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return &a, nil
}
