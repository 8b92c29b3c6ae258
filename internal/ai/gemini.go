package ai

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"ticket-agent/internal/config"
)

const (
	textModel   = "models/gemini-1.5-flash"
	visionModel = "models/gemini-1.5-pro"

	// Pages are long; only the head reaches the model.
	maxPromptHTML = 5000
)

// Gemini answers the agent's text and vision queries. Every method can
// fail (quota, timeout, junk reply); callers carry a deterministic
// fallback for each.
type Gemini struct {
	client *genai.Client
	text   *genai.GenerativeModel
	vision *genai.GenerativeModel
	log    *zap.Logger
}

// NewGemini builds a client for the given API key.
func NewGemini(ctx context.Context, apiKey string, log *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	text := client.GenerativeModel(textModel)
	text.SetTemperature(0.1)
	vision := client.GenerativeModel(visionModel)
	vision.SetTemperature(0.1)

	return &Gemini{client: client, text: text, vision: vision, log: log}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// QueryText sends a plain prompt and returns the concatenated text
// parts of the first candidate.
func (g *Gemini) QueryText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.text.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini text query: %w", err)
	}
	return flatten(resp)
}

// QueryVision sends a prompt plus a PNG image.
func (g *Gemini) QueryVision(ctx context.Context, prompt string, png []byte) (string, error) {
	resp, err := g.vision.GenerateContent(ctx, genai.Text(prompt), genai.ImageData("png", png))
	if err != nil {
		return "", fmt.Errorf("gemini vision query: %w", err)
	}
	return flatten(resp)
}

func flatten(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// AnalyzePage asks the model where the booking machinery on a page
// lives. The result is advisory; the scraper validates every selector
// against the live DOM before use.
func (g *Gemini) AnalyzePage(ctx context.Context, html, pageURL string) (*PageAnalysis, error) {
	if len(html) > maxPromptHTML {
		html = html[:maxPromptHTML]
	}

	prompt := fmt.Sprintf(`Analyze this webpage for ticket booking.
URL: %s
Task: find ticket booking elements

HTML content (truncated):
%s

Provide a JSON object with:
1. "form_selectors": CSS selectors for booking form elements
2. "ticket_elements": selectors for ticket quantity/type elements
3. "submit_button": selector for the submit button
4. "required_fields": list of required form fields
5. "captcha_present": boolean indicating if a CAPTCHA is detected
6. "next_steps": array of actions to take, each "click <css selector>"
7. "warnings": any potential issues or obstacles

Return ONLY valid JSON, no other text.`, pageURL, html)

	reply, err := g.QueryText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	analysis, err := ParseAnalysis(reply)
	if err != nil {
		g.log.Warn("page analysis reply unusable", zap.Error(err))
		return nil, err
	}
	return analysis, nil
}

// FormValues asks the model to map form field names to values for the
// given user and quantity.
func (g *Gemini) FormValues(ctx context.Context, fields []string, user config.UserInfo, ticketCount int) (map[string]string, error) {
	prompt := fmt.Sprintf(`Generate form data for ticket booking based on these fields:
Form fields: %s

User information:
- Name: %s
- Email: %s
- Phone: %s
- Address: %s

Ticket count: %d

Provide a JSON object mapping every form field name to an appropriate
string value. Use common field naming patterns to match fields to user
data and reasonable defaults for unknown fields.

Return ONLY valid JSON, no other text.`,
		strings.Join(fields, ", "),
		user.Name, user.Email, user.Phone, user.Address, ticketCount)

	reply, err := g.QueryText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	values, err := ParseObject(reply)
	if err != nil {
		g.log.Warn("form data reply unusable", zap.Error(err))
		return nil, err
	}
	return values, nil
}

// SolveCaptcha transcribes a captcha image with the vision model.
func (g *Gemini) SolveCaptcha(ctx context.Context, png []byte) (string, error) {
	prompt := `Solve this CAPTCHA image. Look carefully at the text or numbers
shown and reply with only the solution text, nothing else.
If it is a mathematical expression, reply with the calculated result.
If it is distorted text, reply with the clean text.`

	reply, err := g.QueryVision(ctx, prompt, png)
	if err != nil {
		return "", err
	}
	solution := strings.TrimSpace(reply)
	if solution == "" {
		return "", fmt.Errorf("empty captcha solution")
	}
	g.log.Info("captcha solution generated", zap.String("solution", solution))
	return solution, nil
}
