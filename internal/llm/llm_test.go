package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
)

type fakeRuntime struct {
	invokeIn    *bedrockruntime.InvokeModelInput
	converseIn  *bedrockruntime.ConverseInput
	invokeOut   *bedrockruntime.InvokeModelOutput
	converseOut *bedrockruntime.ConverseOutput
	err         error
}

func (f *fakeRuntime) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.invokeIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.invokeOut, nil
}

func (f *fakeRuntime) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.converseIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.converseOut, nil
}

func TestNormalize(t *testing.T) {
	sys, msgs, err := Normalize("base", []Message{
		{Role: RoleAssistant, Content: "hola, soy el asistente"},
		{Role: RoleSystem, Content: "responde en español"},
		{Role: RoleUser, Content: "primera"},
		{Role: RoleUser, Content: "segunda"},
		{Role: RoleAssistant, Content: "  "},
		{Role: RoleAssistant, Content: "respuesta"},
		{Role: RoleUser, Content: "tercera"},
	})
	require.NoError(t, err)

	assert.Equal(t, "base\n\nresponde en español", sys)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "primera\n\nsegunda"},
		{Role: RoleAssistant, Content: "respuesta"},
		{Role: RoleUser, Content: "tercera"},
	}, msgs)
}

func TestNormalize_Errors(t *testing.T) {
	_, _, err := Normalize("", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	_, _, err = Normalize("", []Message{{Role: RoleAssistant, Content: "only me"}})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	_, _, err = Normalize("", []Message{{Role: "tool", Content: "x"}})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestIsNova(t *testing.T) {
	assert.True(t, IsNova("amazon.nova-pro-v1:0"))
	assert.True(t, IsNova("us.amazon.NOVA-lite-v1:0"))
	assert.False(t, IsNova("anthropic.claude-3-5-sonnet-20240620-v1:0"))
}

func TestChat_NovaUsesInvokeModel(t *testing.T) {
	rt := &fakeRuntime{invokeOut: &bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"output":{"message":{"role":"assistant","content":[{"text":"Hola "},{"text":"mundo"}]}},"stopReason":"end_turn","usage":{"inputTokens":12,"outputTokens":3,"totalTokens":15}}`),
	}}
	c := New(rt)

	resp, err := c.Chat(context.Background(), Request{
		ModelID:     "amazon.nova-pro-v1:0",
		System:      "Eres un arquitecto AWS.",
		Messages:    []Message{{Role: RoleUser, Content: "hola"}},
		MaxTokens:   4000,
		Temperature: 0.7,
		TopP:        0.9,
	})
	require.NoError(t, err)
	require.Nil(t, rt.converseIn)
	require.NotNil(t, rt.invokeIn)

	assert.Equal(t, "Hola mundo", resp.Text)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, resp.Usage)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rt.invokeIn.Body, &body))
	assert.Equal(t, "messages-v1", body["schemaVersion"])
	assert.Equal(t, "amazon.nova-pro-v1:0", aws.ToString(rt.invokeIn.ModelId))
	cfg := body["inferenceConfig"].(map[string]any)
	assert.EqualValues(t, 4000, cfg["max_new_tokens"])
	assert.EqualValues(t, 0.9, cfg["topP"])
	system := body["system"].([]any)
	assert.Equal(t, "Eres un arquitecto AWS.", system[0].(map[string]any)["text"])
}

func TestChat_OtherModelsUseConverse(t *testing.T) {
	rt := &fakeRuntime{converseOut: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "listo"}},
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(20), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(22)},
	}}
	c := New(rt)

	resp, err := c.Chat(context.Background(), Request{
		ModelID:   "anthropic.claude-3-5-sonnet-20240620-v1:0",
		System:    "sys",
		Messages:  []Message{{Role: RoleUser, Content: "hola"}, {Role: RoleAssistant, Content: "qué tal"}, {Role: RoleUser, Content: "diagrama"}},
		MaxTokens: 1000,
	})
	require.NoError(t, err)
	require.Nil(t, rt.invokeIn)
	require.NotNil(t, rt.converseIn)

	assert.Equal(t, "listo", resp.Text)
	assert.Equal(t, 22, resp.Usage.TotalTokens)
	assert.Len(t, rt.converseIn.Messages, 3)
	assert.Equal(t, types.ConversationRoleAssistant, rt.converseIn.Messages[1].Role)
	assert.Equal(t, int32(1000), aws.ToInt32(rt.converseIn.InferenceConfig.MaxTokens))
	require.Len(t, rt.converseIn.System, 1)
}

func TestChat_EstimatesMissingUsage(t *testing.T) {
	rt := &fakeRuntime{invokeOut: &bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"output":{"message":{"role":"assistant","content":[{"text":"una respuesta corta"}]}}}`),
	}}
	resp, err := New(rt).Chat(context.Background(), Request{
		ModelID:  "amazon.nova-lite-v1:0",
		Messages: []Message{{Role: RoleUser, Content: "hola mundo"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Usage.Estimated)
	assert.Greater(t, resp.Usage.InputTokens, 0)
	assert.Greater(t, resp.Usage.OutputTokens, 0)
	assert.Equal(t, resp.Usage.InputTokens+resp.Usage.OutputTokens, resp.Usage.TotalTokens)
}

func TestChat_RuntimeErrorIsUpstreamUnavailable(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("throttled")}
	_, err := New(rt).Chat(context.Background(), Request{
		ModelID:  "amazon.nova-pro-v1:0",
		Messages: []Message{{Role: RoleUser, Content: "hola"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstreamUnavailable))
	assert.Equal(t, 503, apperrors.StatusOf(err))
}

func TestChat_MalformedNovaBody(t *testing.T) {
	rt := &fakeRuntime{invokeOut: &bedrockruntime.InvokeModelOutput{Body: []byte(`not json`)}}
	_, err := New(rt).Chat(context.Background(), Request{
		ModelID:  "amazon.nova-pro-v1:0",
		Messages: []Message{{Role: RoleUser, Content: "hola"}},
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrContractViolation))
}

func TestChat_RequiresModel(t *testing.T) {
	_, err := New(&fakeRuntime{}).Chat(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Greater(t, CountTokens("Necesito una arquitectura serverless"), 0)
}
