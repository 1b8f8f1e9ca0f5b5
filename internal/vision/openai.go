package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// openAIClassifier calls an OpenAI-compatible chat-completions endpoint
// with the frame attached as an inline image and expects a small JSON
// verdict back.
type openAIClassifier struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

func newOpenAIClassifier(cfg Config) (*openAIClassifier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: openai backend requires base url", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai backend requires api key", ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAIClassifier{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

var _ Classifier = (*openAIClassifier)(nil)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type wireVerdict struct {
	Failed bool   `json:"failed"`
	Reason string `json:"reason"`
}

func (c *openAIClassifier) Classify(ctx context.Context, frame []byte, expected string) (Verdict, error) {
	start := time.Now()

	prompt := expected + ` Answer with a single JSON object: {"failed": <bool>, "reason": "<short explanation>"}.`
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &chatImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
				}},
			},
		}},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: encode request: %v", ErrClassification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: read response: %v", ErrClassification, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("%w: status %d: %s", ErrClassification, resp.StatusCode, bytes.TrimSpace(payload))
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode response: %v", ErrClassification, err)
	}
	if len(chat.Choices) == 0 {
		return Verdict{}, fmt.Errorf("%w: empty choices", ErrClassification)
	}

	verdict, err := parseVerdict(chat.Choices[0].Message.Content)
	if err != nil {
		return Verdict{}, err
	}
	verdict.Model = c.model
	verdict.Elapsed = time.Since(start)
	return verdict, nil
}

// parseVerdict extracts the verdict object from the model's reply, which
// may wrap the JSON in prose or code fences.
func parseVerdict(content string) (Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("%w: no verdict object in %q", ErrClassification, content)
	}
	var wire wireVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &wire); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode verdict: %v", ErrClassification, err)
	}
	return Verdict{Failed: wire.Failed, Reason: wire.Reason}, nil
}
