// Package llm drafts short customer-facing review replies through AWS
// Bedrock. Drafts are suggestions only; nothing here publishes anything.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/tensormd/repops/internal/config"
)

const defaultModelID = "anthropic.claude-3-sonnet-20240229-v1:0"

// DraftRequest carries everything the model needs to write one reply.
type DraftRequest struct {
	BusinessName string
	ReviewerName string
	Rating       int
	Comment      string
}

// Drafter produces a reply draft for one review.
type Drafter interface {
	DraftReply(ctx context.Context, req DraftRequest) (string, error)
}

// modelInvoker is the slice of the Bedrock runtime client we use.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock drafts replies with a Claude model behind the Bedrock runtime.
type Bedrock struct {
	client   modelInvoker
	modelID  string
	maxChars int
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// IsRetryable reports whether a model call is worth retrying: throttling,
// model timeouts, and server-side faults. Validation and access errors
// fail fast.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException",
			"ModelTimeoutException", "ServiceUnavailableException",
			"InternalServerException":
			return true
		}
		return false
	}
	// Transport-level errors (resets, DNS) carry no API code.
	return true
}

// NewBedrock builds a drafter against the configured region and model.
func NewBedrock(ctx context.Context, cfg config.LLMConfig) (*Bedrock, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	modelID := cfg.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}

	log.Printf("[llm] initialized model=%s region=%s", modelID, region)
	return &Bedrock{
		client:   bedrockruntime.NewFromConfig(awsCfg),
		modelID:  modelID,
		maxChars: cfg.MaxReplyChars,
	}, nil
}

// DraftReply asks the model for a reply to one review and trims the result
// to the configured character budget.
func (b *Bedrock) DraftReply(ctx context.Context, req DraftRequest) (string, error) {
	request := claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        400,
		System:           systemPrompt(req.BusinessName),
		Messages: []claudeMessage{
			{Role: "user", Content: userPrompt(req)},
		},
		Temperature: 0.7,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshaling draft request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoking model: %w", err)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(output.Body, &parsed); err != nil {
		return "", fmt.Errorf("parsing model response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	reply := strings.TrimSpace(text.String())
	if reply == "" {
		return "", fmt.Errorf("model returned an empty draft")
	}

	log.Printf("[llm] drafted reply (in=%d out=%d tokens)",
		parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
	return TrimReply(reply, b.maxChars), nil
}

func systemPrompt(businessName string) string {
	if businessName == "" {
		businessName = "the business"
	}
	return fmt.Sprintf(`You write short, warm replies to customer reviews on behalf of %s.

Guidelines:
- Thank the reviewer by first name when one is given.
- For 4-5 star reviews, reinforce what they liked in one sentence.
- For 1-3 star reviews, apologize once, do not argue, and invite them to
  contact the business directly to make it right.
- Never promise refunds, discounts, or specific remedies.
- Never mention that the reply was drafted automatically.
- Keep the reply under 500 characters. Plain text only, no markdown.`, businessName)
}

func userPrompt(req DraftRequest) string {
	reviewer := req.ReviewerName
	if reviewer == "" {
		reviewer = "Anonymous"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a reply to this review.\n\nReviewer: %s\nRating: %d out of 5\n", reviewer, req.Rating)
	if comment := strings.TrimSpace(req.Comment); comment != "" {
		fmt.Fprintf(&sb, "Review text: %s\n", comment)
	} else {
		sb.WriteString("Review text: (no text, rating only)\n")
	}
	sb.WriteString("\nReply with the reply text only.")
	return sb.String()
}

// TrimReply caps text at max characters, cutting back to the last word
// boundary so a truncated draft never ends mid-word.
func TrimReply(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	cut := string(runes[:max-1])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:.") + "…"
}
