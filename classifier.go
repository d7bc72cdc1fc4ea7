package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Classification is the structured result of one classifier call. Category is
// at most one name drawn from the set supplied with the call.
type Classification struct {
	Subject   string `json:"subject"`
	Summary   string `json:"summary"`
	Category  string `json:"category"`
	UnsubLink string `json:"unsub_link"`
}

// Verdict statuses for unsubscribe verification
const (
	VerdictSuccess = "success"
	VerdictFailure = "failure"
)

// UnsubVerdict is the verifier's judgement of raw automation output
type UnsubVerdict struct {
	Status      string `json:"status"`
	Explanation string `json:"explanation"`
}

// Classifier turns raw message content into structured fields and judges
// automation output. Both calls go to an LLM and can fail or time out.
type Classifier interface {
	Classify(ctx context.Context, account *Account, subject, body string, categories []Category) (*Classification, error)
	VerifyUnsubscribe(ctx context.Context, raw string) (*UnsubVerdict, error)
}

// resolveCategoryID maps a classifier-returned category name back to its id by
// exact match. A name outside the supplied set resolves to uncategorized.
func resolveCategoryID(name string, categories []Category) *string {
	if name == "" {
		return nil
	}
	for _, category := range categories {
		if category.Name == name {
			id := category.ID
			return &id
		}
	}
	return nil
}

// GeminiClassifier implements Classifier against the Gemini API
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a Gemini-backed classifier
func NewGeminiClassifier(ctx context.Context, config *GeminiConfig) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClassifier{client: client, model: config.Model}, nil
}

// Classify asks the model for a short subject paraphrase, an action-first
// summary, at most one category name from the supplied set, and the raw
// unsubscribe URL when one exists in the message.
func (c *GeminiClassifier) Classify(ctx context.Context, account *Account, subject, body string, categories []Category) (*Classification, error) {
	var categoryLines strings.Builder
	for _, category := range categories {
		fmt.Fprintf(&categoryLines, "%s: %q\n", category.Name, category.Description)
	}

	system := fmt.Sprintf(`Your job is to analyze the email provided by the user and return a JSON object with key information about it.

Context:
The user's name is %s and their email address is %s`, account.Name, account.Email)

	prompt := fmt.Sprintf("Subject: %s\n\nBody:\n\n%s", subject, body)

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"subject": {
				Type:        genai.TypeString,
				Description: "a short, straight to the point description of what the email is about, from the point of view of the receiving user. Aim for 4 words or less. This should be the most important information about the email, allowing the user to skim over the list and quickly understand what this is about.",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "a short, straight to the point description of the email contents and purpose, from the point of view of the receiving user. Aim for 30 words or less, mentioning the action to take first. Avoid repeating any word that already appears in the subject.",
			},
			"category": {
				Type:        genai.TypeString,
				Description: "the name of the single most relevant category, or an empty string when none fits. Use ONLY names from the following list (format: name: \"description\", one per line)\n\n" + categoryLines.String(),
			},
			"unsub_link": {
				Type:        genai.TypeString,
				Description: "the raw URL of the link to unsubscribe from these emails, if available, otherwise an empty string",
			},
		},
		Required: []string{"subject", "summary"},
	}

	response, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	var classification Classification
	if err := json.Unmarshal([]byte(response.Text()), &classification); err != nil {
		return nil, fmt.Errorf("failed to parse classification output: %w", err)
	}
	return &classification, nil
}

// VerifyUnsubscribe judges free-text automation output as success or failure.
// Any error, unparseable output, or status other than the success token
// resolves to failure.
func (c *GeminiClassifier) VerifyUnsubscribe(ctx context.Context, raw string) (*UnsubVerdict, error) {
	system := `You judge the raw output of a browser automation agent that attempted to unsubscribe a user from a mailing list. Respond with status "success" ONLY when the output unambiguously confirms the unsubscription succeeded, such as a bare OK. Error objects, partial progress, and anything ambiguous is "failure". Always include a short human-readable explanation.`

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"status": {
				Type: genai.TypeString,
				Enum: []string{VerdictSuccess, VerdictFailure},
			},
			"explanation": {
				Type:        genai.TypeString,
				Description: "a short human-readable explanation of the judgement",
			},
		},
		Required: []string{"status", "explanation"},
	}

	response, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(raw), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return nil, fmt.Errorf("verification call failed: %w", err)
	}

	return parseVerdict([]byte(response.Text())), nil
}

// parseVerdict maps raw verifier output onto a verdict, failing closed: only
// an explicit success status counts as success.
func parseVerdict(raw []byte) *UnsubVerdict {
	var verdict UnsubVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return &UnsubVerdict{
			Status:      VerdictFailure,
			Explanation: "verifier returned unparseable output: " + string(raw),
		}
	}
	if verdict.Status != VerdictSuccess {
		verdict.Status = VerdictFailure
		if verdict.Explanation == "" {
			verdict.Explanation = "verifier did not confirm the unsubscription"
		}
	}
	return &verdict
}
