package ops

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/config"
	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
	"github.com/coedaniel/aws-propuestas-v3/internal/session"
)

type fakeModel struct {
	reply string
	err   error
	got   llm.Request
	calls int
}

func (m *fakeModel) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.calls++
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{
		Text:  m.reply,
		Usage: llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

type toolCall struct {
	svc  mcpclient.Service
	tool string
	args map[string]any
}

type fakeTools struct {
	calls   []toolCall
	fail    map[mcpclient.Service]bool
	results map[mcpclient.Service]string
}

func (f *fakeTools) CallTool(_ context.Context, svc mcpclient.Service, tool string, args map[string]any) (*mcpclient.ToolResult, error) {
	f.calls = append(f.calls, toolCall{svc: svc, tool: tool, args: args})
	if f.fail[svc] {
		return nil, errors.NewUpstreamUnavailable("mcp:"+string(svc), stderrors.New("boom"))
	}
	result := `{"ok":true}`
	if r, ok := f.results[svc]; ok {
		result = r
	}
	return &mcpclient.ToolResult{Success: true, Result: json.RawMessage(result)}, nil
}

func (f *fakeTools) called(svc mcpclient.Service) bool {
	for _, c := range f.calls {
		if c.svc == svc {
			return true
		}
	}
	return false
}

func newDeps(t *testing.T, model *fakeModel, tools *fakeTools) Deps {
	t.Helper()
	descs, err := capability.LoadCatalog()
	require.NoError(t, err)
	return Deps{
		Config:     config.DefaultConfig(),
		Classifier: capability.NewClassifier(descs),
		Model:      model,
		Tools:      tools,
	}
}

func TestChatInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   ChatInput
		wantErr bool
	}{
		{"ok", ChatInput{Message: "hola"}, false},
		{"blank", ChatInput{Message: "   "}, true},
		{"too long", ChatInput{Message: strings.Repeat("a", MaxMessageChars+1)}, true},
		{"bad role", ChatInput{Message: "x", History: []llm.Message{{Role: "robot", Content: "y"}}}, true},
		{"too much history", ChatInput{Message: "x", History: make([]llm.Message, 3)}, true},
		{"messages form", ChatInput{Messages: []llm.Message{{Role: llm.RoleUser, Content: "a"}, {Role: llm.RoleAssistant, Content: "b"}, {Role: llm.RoleUser, Content: "c"}}}, false},
		{"messages ending with assistant", ChatInput{Messages: []llm.Message{{Role: llm.RoleAssistant, Content: "b"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			err := in.Validate(2)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestChatInput_MessagesForm(t *testing.T) {
	in := ChatInput{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: "a"},
		{Role: llm.RoleAssistant, Content: "b"},
		{Role: llm.RoleUser, Content: " c "},
	}}
	require.NoError(t, in.Validate(0))
	assert.Equal(t, "c", in.Message)
	assert.Len(t, in.History, 2)
	assert.Nil(t, in.Messages)
}

func TestChat_ClassifiesAndAugments(t *testing.T) {
	model := &fakeModel{reply: "Hola"}
	deps := newDeps(t, model, &fakeTools{})

	out, err := Chat(context.Background(), deps, ChatInput{
		Message: "genera un diagrama de arquitectura para un e-commerce",
		History: []llm.Message{{Role: llm.RoleUser, Content: "hola"}, {Role: llm.RoleAssistant, Content: "¿qué necesitas?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "aws-diagram", out.MCPServicesDetected[0])
	assert.Equal(t, "amazon.nova-pro-v1:0", out.SelectedModel)
	assert.Equal(t, 15, out.Usage.TotalTokens)
	assert.Contains(t, model.got.System, "aws-diagram")
	assert.True(t, strings.HasPrefix(model.got.System, DefaultSystemPrompt))
	require.Len(t, model.got.Messages, 3)
	assert.Equal(t, llm.RoleUser, model.got.Messages[2].Role)
	assert.Equal(t, 4000, model.got.MaxTokens)
}

func TestChat_NoCapabilitiesKeepsBasePrompt(t *testing.T) {
	model := &fakeModel{reply: "Hola"}
	out, err := Chat(context.Background(), newDeps(t, model, &fakeTools{}), ChatInput{Message: "hola, buenos días"})
	require.NoError(t, err)

	assert.NotNil(t, out.MCPServicesDetected)
	assert.Empty(t, out.MCPServicesDetected)
	assert.Equal(t, DefaultSystemPrompt, model.got.System)
}

func TestChat_ProjectContextAndModelOverride(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	out, err := Chat(context.Background(), newDeps(t, model, &fakeTools{}), ChatInput{
		Message: "hola",
		Model:   "anthropic.claude-3-haiku",
		Project: map[string]any{"name": "Tienda", "budget": 1000, "tags": []any{"x"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "anthropic.claude-3-haiku", out.SelectedModel)
	assert.Equal(t, "anthropic.claude-3-haiku", model.got.ModelID)
	assert.Contains(t, model.got.System, "- budget: 1000\n- name: Tienda\n")
	assert.NotContains(t, model.got.System, "tags")
}

func TestChat_CloudFormationOnlyPath(t *testing.T) {
	model := &fakeModel{reply: "He generado el CloudFormation template para tu infraestructura."}
	tools := &fakeTools{results: map[mcpclient.Service]string{mcpclient.ServiceCFN: `{"template":"AWSTemplateFormatVersion"}`}}

	out, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{Message: "hola", PostProcess: true})
	require.NoError(t, err)

	assert.True(t, tools.called(mcpclient.ServiceCFN))
	assert.False(t, tools.called(mcpclient.ServiceDiagram))
	require.NotNil(t, out.GeneratedFiles)
	assert.JSONEq(t, `{"template":"AWSTemplateFormatVersion"}`, string(out.GeneratedFiles.CloudFormation))
	assert.Nil(t, out.GeneratedFiles.Diagram)
}

func TestChat_DiagramArguments(t *testing.T) {
	model := &fakeModel{reply: "La arquitectura usa API Gateway. Lambda procesa. DynamoDB guarda. Fin."}
	tools := &fakeTools{}

	_, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{
		Message:     "hola",
		Project:     map[string]any{"name": "Tienda"},
		PostProcess: true,
	})
	require.NoError(t, err)

	require.Len(t, tools.calls, 1)
	c := tools.calls[0]
	assert.Equal(t, mcpclient.ServiceDiagram, c.svc)
	assert.Equal(t, toolGenerateDiagram, c.tool)
	assert.Equal(t, []string{"Lambda", "DynamoDB", "API Gateway"}, c.args["services"])
	assert.Equal(t, "La arquitectura usa API Gateway. Lambda procesa. DynamoDB guarda", c.args["description"])
	assert.Equal(t, "Tienda", c.args["project_name"])
}

func TestChat_SecondaryFailuresAreDropped(t *testing.T) {
	model := &fakeModel{reply: "Te comparto el diagrama de arquitectura y la plantilla CloudFormation."}
	tools := &fakeTools{fail: map[mcpclient.Service]bool{
		mcpclient.ServiceDiagram: true,
		mcpclient.ServiceCFN:     true,
		mcpclient.ServiceDocs:    true,
	}}

	out, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{
		Message:     "dame la documentación y mejores prácticas",
		PostProcess: true,
	})
	require.NoError(t, err)

	assert.Equal(t, model.reply, out.Response)
	assert.Nil(t, out.GeneratedFiles)
	assert.Nil(t, out.AWSDocumentation)
	assert.Len(t, tools.calls, 3)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "generatedFiles")
}

func TestChat_PartialFailureKeepsSuccessfulFile(t *testing.T) {
	model := &fakeModel{reply: "Te comparto el diagrama y la plantilla CloudFormation."}
	tools := &fakeTools{fail: map[mcpclient.Service]bool{mcpclient.ServiceDiagram: true}}

	out, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{Message: "hola", PostProcess: true})
	require.NoError(t, err)

	require.NotNil(t, out.GeneratedFiles)
	assert.Nil(t, out.GeneratedFiles.Diagram)
	assert.NotNil(t, out.GeneratedFiles.CloudFormation)
}

func TestChat_DocumentationSearch(t *testing.T) {
	model := &fakeModel{reply: "Sigue estas recomendaciones."}
	tools := &fakeTools{results: map[mcpclient.Service]string{mcpclient.ServiceDocs: `[{"title":"Well-Architected"}]`}}

	out, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{
		Message:     "documentación de well-architected",
		PostProcess: true,
	})
	require.NoError(t, err)

	require.Len(t, tools.calls, 1)
	assert.Equal(t, toolSearchDocs, tools.calls[0].tool)
	assert.Equal(t, "documentación de well-architected", tools.calls[0].args["search_phrase"])
	assert.JSONEq(t, `[{"title":"Well-Architected"}]`, string(out.AWSDocumentation))
}

func TestChat_WithoutPostProcessMakesNoToolCalls(t *testing.T) {
	model := &fakeModel{reply: "Aquí está el diagrama de arquitectura en CloudFormation."}
	tools := &fakeTools{}

	out, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{Message: "documentación"})
	require.NoError(t, err)
	assert.Empty(t, tools.calls)
	assert.Nil(t, out.GeneratedFiles)
}

func TestChat_ModelFailure(t *testing.T) {
	model := &fakeModel{err: stderrors.New("throttled")}
	tools := &fakeTools{}

	_, err := Chat(context.Background(), newDeps(t, model, tools), ChatInput{Message: "diagrama", PostProcess: true})
	require.Error(t, err)
	assert.Equal(t, 503, errors.StatusOf(err))
	assert.Empty(t, tools.calls)
}

func TestChat_InvalidInputSkipsModel(t *testing.T) {
	model := &fakeModel{reply: "x"}
	_, err := Chat(context.Background(), newDeps(t, model, &fakeTools{}), ChatInput{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Equal(t, 0, model.calls)
}

func TestChat_SessionHistory(t *testing.T) {
	model := &fakeModel{reply: "Respuesta"}
	deps := newDeps(t, model, &fakeTools{})

	state := &session.State{ID: "01S", Model: "amazon.nova-lite-v1:0"}
	_, err := state.Append(llm.RoleUser, "primera pregunta", nil)
	require.NoError(t, err)
	_, err = state.Append(llm.RoleAssistant, "primera respuesta", nil)
	require.NoError(t, err)

	ctx := session.WithState(context.Background(), state)
	out, err := Chat(ctx, deps, ChatInput{
		Message: "necesito un diagrama",
		History: []llm.Message{{Role: llm.RoleUser, Content: "ignorado"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "01S", out.SessionID)
	assert.Equal(t, "amazon.nova-lite-v1:0", out.SelectedModel)
	require.Len(t, model.got.Messages, 3)
	assert.Equal(t, "primera pregunta", model.got.Messages[0].Content)

	require.Len(t, state.Messages, 4)
	assert.Equal(t, "necesito un diagrama", state.Messages[2].Content)
	assert.Equal(t, llm.RoleAssistant, state.Messages[3].Role)
	assert.Equal(t, []string{"aws-diagram"}, state.Messages[3].Capabilities)
}
