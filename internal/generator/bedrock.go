package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
)

// converser is the subset of the Bedrock runtime client used here.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// bedrockCompleter uses the model-agnostic Converse API.
type bedrockCompleter struct {
	client      converser
	model       string
	temperature float64
}

func newBedrockCompleter(ctx context.Context, cfg Config) (*bedrockCompleter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &bedrockCompleter{
		client:      bedrockruntime.NewFromConfig(awsCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *bedrockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		}},
	}
	if c.temperature > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(c.temperature)),
		}
	}

	out, err := c.client.Converse(ctx, input)
	if err != nil {
		return "", apierr.Classify("bedrock", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}
