package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ticket-agent/internal/config"
)

// FieldKind distinguishes fillable field flavors.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldSelect FieldKind = "select"
)

// FormField describes one fillable field of the booking form. The
// Selector re-resolves the element on every use, so the descriptor
// stays valid only until the next navigation; extraction runs again on
// every attempt.
type FormField struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Selector string    `json:"selector"`
	// Options holds the value list of a select field, in document
	// order. Empty for text fields.
	Options []string `json:"options,omitempty"`
}

// extractFieldsJS scans the first form in one atomic evaluation so no
// element handle crosses the JS/Go boundary. Only the first form is
// considered; multi-form pages are a documented limitation. Inputs of
// type submit/button/hidden and fields with no name or id are skipped.
const extractFieldsJS = `(function(){
	const form = document.querySelector('form');
	if (!form) return "[]";
	const out = [];
	const seen = {};
	const sel = (name) => 'form [name=' + JSON.stringify(name) + ']';
	const selID = (id) => 'form [id=' + JSON.stringify(id) + ']';
	for (const el of form.querySelectorAll('input, textarea')) {
		const type = (el.getAttribute('type') || 'text').toLowerCase();
		if (type === 'submit' || type === 'button' || type === 'hidden') continue;
		const name = el.getAttribute('name') || el.getAttribute('id');
		if (!name || seen[name]) continue;
		seen[name] = true;
		out.push({
			name: name,
			kind: 'text',
			selector: el.getAttribute('name') ? sel(name) : selID(name),
		});
	}
	for (const el of form.querySelectorAll('select')) {
		const name = el.getAttribute('name') || el.getAttribute('id');
		if (!name || seen[name]) continue;
		seen[name] = true;
		out.push({
			name: name,
			kind: 'select',
			selector: el.getAttribute('name') ? sel(name) : selID(name),
			options: Array.from(el.options).map(o => o.value),
		});
	}
	return JSON.stringify(out);
})()`

// ExtractFields returns the fillable fields of the first form on the
// current page, in document order with unique names.
func (s *Scraper) ExtractFields(ctx context.Context) ([]FormField, error) {
	var raw string
	if err := s.drv.Eval(ctx, extractFieldsJS, &raw); err != nil {
		return nil, fmt.Errorf("scan form: %w", err)
	}
	var fields []FormField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode form fields: %w", err)
	}
	s.log.Debug("extracted form fields", zap.Int("count", len(fields)))
	return fields, nil
}

// FillForm writes a value into every extracted field and returns what
// was actually used per field. The assistant proposes the mapping;
// when it fails or is absent, FallbackFormValues decides. Per-field
// failures are logged and skipped, never fatal.
func (s *Scraper) FillForm(ctx context.Context, fields []FormField, user config.UserInfo, ticketCount int) map[string]string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var values map[string]string
	if s.assist != nil {
		generated, err := s.assist.FormValues(ctx, names, user, ticketCount)
		if err != nil {
			s.log.Warn("assistant form values unavailable, using fallback", zap.Error(err))
		} else {
			values = generated
		}
	}
	if values == nil {
		values = FallbackFormValues(names, user, ticketCount)
	}

	filled := make(map[string]string, len(fields))
	for _, field := range fields {
		value := values[field.Name]
		if err := s.fillField(ctx, field, value); err != nil {
			s.log.Warn("failed to fill field",
				zap.String("field", field.Name), zap.Error(err))
			continue
		}
		filled[field.Name] = value
	}
	return filled
}

func (s *Scraper) fillField(ctx context.Context, field FormField, value string) error {
	if field.Kind != FieldSelect {
		return s.drv.SetValue(ctx, field.Selector, value)
	}

	// Value match first, visible text second; no match leaves the
	// select at its current value.
	matched, err := s.drv.SelectByValue(ctx, field.Selector, value)
	if err != nil {
		return err
	}
	if !matched {
		matched, err = s.drv.SelectByText(ctx, field.Selector, value)
		if err != nil {
			return err
		}
	}
	if !matched {
		s.log.Debug("no matching option, leaving select untouched",
			zap.String("field", field.Name), zap.String("value", value))
	}
	return nil
}

// FallbackFormValues maps field names to values by keyword when no
// assistant answer is available. Unmatched fields get an empty string.
func FallbackFormValues(fields []string, user config.UserInfo, ticketCount int) map[string]string {
	values := make(map[string]string, len(fields))
	for _, field := range fields {
		lower := strings.ToLower(field)
		switch {
		case containsAny(lower, "name", "first", "last"):
			values[field] = user.Name
		case strings.Contains(lower, "email"):
			values[field] = user.Email
		case strings.Contains(lower, "phone"):
			values[field] = user.Phone
		case containsAny(lower, "quantity", "ticket", "count", "qty"):
			values[field] = strconv.Itoa(ticketCount)
		case strings.Contains(lower, "address"):
			values[field] = user.Address
		default:
			values[field] = ""
		}
	}
	return values
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
