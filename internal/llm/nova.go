package llm

import (
	"strings"

	"github.com/goccy/go-json"
)

// Nova models take a messages-v1 body through InvokeModel.

type novaText struct {
	Text string `json:"text"`
}

type novaMessage struct {
	Role    string     `json:"role"`
	Content []novaText `json:"content"`
}

type novaInferenceConfig struct {
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"topP"`
}

type novaRequest struct {
	SchemaVersion   string              `json:"schemaVersion"`
	System          []novaText          `json:"system,omitempty"`
	Messages        []novaMessage       `json:"messages"`
	InferenceConfig novaInferenceConfig `json:"inferenceConfig"`
}

type novaResponse struct {
	Output struct {
		Message novaMessage `json:"message"`
	} `json:"output"`
	StopReason string `json:"stopReason"`
	Usage      *struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		TotalTokens  int `json:"totalTokens"`
	} `json:"usage"`
}

// IsNova reports whether modelID uses the Nova InvokeModel convention.
func IsNova(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "nova")
}

func encodeNova(system string, msgs []Message, req Request) ([]byte, error) {
	body := novaRequest{
		SchemaVersion: "messages-v1",
		Messages:      make([]novaMessage, 0, len(msgs)),
		InferenceConfig: novaInferenceConfig{
			MaxNewTokens: req.MaxTokens,
			Temperature:  req.Temperature,
			TopP:         req.TopP,
		},
	}
	if system != "" {
		body.System = []novaText{{Text: system}}
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, novaMessage{
			Role:    string(m.Role),
			Content: []novaText{{Text: m.Content}},
		})
	}
	return json.Marshal(body)
}

func decodeNova(data []byte) (string, *Usage, error) {
	var resp novaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	for _, c := range resp.Output.Message.Content {
		sb.WriteString(c.Text)
	}
	if resp.Usage == nil {
		return sb.String(), nil, nil
	}
	u := &Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return sb.String(), u, nil
}
