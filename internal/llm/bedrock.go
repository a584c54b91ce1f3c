package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog/log"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/telemetry"
)

const upstreamName = "bedrock"

// Runtime is the part of *bedrockruntime.Client used by Client.
type Runtime interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client sends chat requests to Bedrock.
type Client struct {
	rt Runtime
}

// New wraps an existing runtime.
func New(rt Runtime) *Client {
	return &Client{rt: rt}
}

// NewFromConfig builds a Bedrock runtime client from the default AWS
// credential chain for region.
func NewFromConfig(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return New(bedrockruntime.NewFromConfig(cfg)), nil
}

// Chat runs one completion. Nova model ids go through InvokeModel with a
// messages-v1 body; every other id uses the Converse API.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.ModelID) == "" {
		return nil, apperrors.NewInvalidRequest("model id is required")
	}
	system, msgs, err := Normalize(req.System, req.Messages)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		text  string
		usage *Usage
	)
	if IsNova(req.ModelID) {
		text, usage, err = c.invokeNova(ctx, system, msgs, req)
	} else {
		text, usage, err = c.converse(ctx, system, msgs, req)
	}
	if err != nil {
		telemetry.UpstreamFailure(ctx, upstreamName, "chat")
		log.Error().Err(err).Str("model", req.ModelID).Msg("Model call failed")
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewUpstreamUnavailable(upstreamName, err)
	}

	resp := &Response{Text: text, ModelID: req.ModelID}
	if usage != nil {
		resp.Usage = *usage
	} else {
		resp.Usage = estimateUsage(system, msgs, text)
	}

	log.Debug().
		Str("model", req.ModelID).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Model call completed")
	return resp, nil
}

func (c *Client) invokeNova(ctx context.Context, system string, msgs []Message, req Request) (string, *Usage, error) {
	body, err := encodeNova(system, msgs, req)
	if err != nil {
		return "", nil, apperrors.NewInternal(err)
	}
	out, err := c.rt.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", nil, err
	}
	text, usage, err := decodeNova(out.Body)
	if err != nil {
		return "", nil, apperrors.NewContractViolation(upstreamName, err.Error())
	}
	return text, usage, nil
}

func (c *Client) converse(ctx context.Context, system string, msgs []Message, req Request) (string, *Usage, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.ModelID),
		Messages: make([]types.Message, 0, len(msgs)),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
			TopP:        aws.Float32(float32(req.TopP)),
		},
	}
	if req.MaxTokens > 0 {
		in.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if system != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	for _, m := range msgs {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		in.Messages = append(in.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	out, err := c.rt.Converse(ctx, in)
	if err != nil {
		return "", nil, err
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", nil, apperrors.NewContractViolation(upstreamName, "converse output has no message")
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}

	if out.Usage == nil {
		return sb.String(), nil, nil
	}
	u := &Usage{
		InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
		OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return sb.String(), u, nil
}
