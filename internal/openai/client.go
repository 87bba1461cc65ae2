package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// FallbackLength is the number of characters kept when no model is available.
const FallbackLength = 80

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// Client wraps the OpenAI SDK to produce short reminder texts from journal notes.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// New returns a client. Without an apiKey the client only truncates.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

// Enabled reports whether requests reach the API.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// SummarizeNote condenses a note into one short sentence suitable for a push notification.
// Without an API key the body is truncated instead.
func (c *Client) SummarizeNote(ctx context.Context, title, body string) (string, error) {
	if c == nil {
		return "", ErrClientNotInitialised
	}
	body = strings.TrimSpace(body)
	if body == "" {
		body = strings.TrimSpace(title)
	}
	if body == "" {
		return "", fmt.Errorf("note content cannot be empty")
	}
	if !c.Enabled() {
		return Truncate(body, FallbackLength), nil
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String("You turn journal notes into one short reminder sentence. Reply in the language of the note."),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(fmt.Sprintf("Title: %s\n\n%s", title, body)),
					},
				},
			},
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(60),
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty completion received")
	}
	return summary, nil
}

// Truncate keeps the first limit characters of s, marking the cut with "...".
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
