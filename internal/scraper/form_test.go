package scraper

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"ticket-agent/internal/ai"
	"ticket-agent/internal/config"
)

type fakeAssistant struct {
	values    map[string]string
	valuesErr error
	analysis  *ai.PageAnalysis
	calls     int
}

func (a *fakeAssistant) AnalyzePage(ctx context.Context, html, pageURL string) (*ai.PageAnalysis, error) {
	return a.analysis, nil
}

func (a *fakeAssistant) FormValues(ctx context.Context, fields []string, user config.UserInfo, ticketCount int) (map[string]string, error) {
	a.calls++
	if a.valuesErr != nil {
		return nil, a.valuesErr
	}
	return a.values, nil
}

func TestFallbackFormValues(t *testing.T) {
	user := config.UserInfo{
		Name:    "Jane Doe",
		Email:   "jane@x.com",
		Phone:   "+15551234",
		Address: "1 Main St",
	}

	tests := []struct {
		name   string
		fields []string
		want   map[string]string
	}{
		{
			name:   "common booking fields",
			fields: []string{"full_name", "email_addr", "qty"},
			want: map[string]string{
				"full_name":  "Jane Doe",
				"email_addr": "jane@x.com",
				"qty":        "3",
			},
		},
		{
			name:   "phone and address",
			fields: []string{"phone_number", "shipping_address"},
			want: map[string]string{
				"phone_number":     "+15551234",
				"shipping_address": "1 Main St",
			},
		},
		{
			name:   "quantity variants",
			fields: []string{"ticket_count", "Quantity"},
			want: map[string]string{
				"ticket_count": "3",
				"Quantity":     "3",
			},
		},
		{
			name:   "unknown field gets empty string",
			fields: []string{"promo_code"},
			want:   map[string]string{"promo_code": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackFormValues(tt.fields, user, 3)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d values, want %d", len(got), len(tt.want))
			}
			for field, want := range tt.want {
				if got[field] != want {
					t.Errorf("field %q = %q, want %q", field, got[field], want)
				}
			}
		})
	}
}

func TestFillFormUsesAssistantValues(t *testing.T) {
	drv := newFakeDriver()
	assist := &fakeAssistant{values: map[string]string{"full_name": "From AI"}}
	s := New(drv, assist, nil, fastOpts(1), zap.NewNop())

	fields := []FormField{{Name: "full_name", Kind: FieldText, Selector: `form [name="full_name"]`}}
	filled := s.FillForm(context.Background(), fields, testUser, 2)

	if assist.calls != 1 {
		t.Fatalf("assistant called %d times, want 1", assist.calls)
	}
	if filled["full_name"] != "From AI" {
		t.Fatalf("filled value = %q, want assistant's", filled["full_name"])
	}
	if drv.setValues[`form [name="full_name"]`] != "From AI" {
		t.Fatalf("driver received %q", drv.setValues[`form [name="full_name"]`])
	}
}

func TestFillFormFallsBackWhenAssistantFails(t *testing.T) {
	drv := newFakeDriver()
	assist := &fakeAssistant{valuesErr: errors.New("quota exceeded")}
	s := New(drv, assist, nil, fastOpts(1), zap.NewNop())

	fields := []FormField{{Name: "email", Kind: FieldText, Selector: `form [name="email"]`}}
	filled := s.FillForm(context.Background(), fields, testUser, 2)

	if filled["email"] != testUser.Email {
		t.Fatalf("filled value = %q, want fallback %q", filled["email"], testUser.Email)
	}
}

func TestFillFormSelectTextFallback(t *testing.T) {
	drv := newFakeDriver()
	drv.selectValue = false
	drv.selectText = true
	s := newTestScraper(drv, 1)

	fields := []FormField{{
		Name:     "quantity",
		Kind:     FieldSelect,
		Selector: `form [name="quantity"]`,
		Options:  []string{"1", "2"},
	}}
	filled := s.FillForm(context.Background(), fields, testUser, 2)

	if _, ok := filled["quantity"]; !ok {
		t.Fatal("select field not reported as filled")
	}
}

func TestExtractFieldsDecodesScan(t *testing.T) {
	drv := newFakeDriver()
	drv.fieldsJSON = `[{"name":"email","kind":"text","selector":"form [name=\"email\"]"},{"name":"qty","kind":"select","selector":"form [name=\"qty\"]","options":["1","2","3"]}]`
	s := newTestScraper(drv, 1)

	fields, err := s.ExtractFields(context.Background())
	if err != nil {
		t.Fatalf("ExtractFields: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].Kind != FieldText || fields[1].Kind != FieldSelect {
		t.Fatalf("unexpected kinds: %v, %v", fields[0].Kind, fields[1].Kind)
	}
	if len(fields[1].Options) != 3 {
		t.Fatalf("select options = %v", fields[1].Options)
	}
}

func TestExtractFieldsBadPayload(t *testing.T) {
	drv := newFakeDriver()
	drv.fieldsJSON = "not json"
	s := newTestScraper(drv, 1)

	if _, err := s.ExtractFields(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}
