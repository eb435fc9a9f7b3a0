package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GenerateSchema generates a JSON schema for structured outputs
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// StructuredCompleter returns a reply constrained to a JSON schema
type StructuredCompleter interface {
	CompleteJSON(ctx context.Context, system, user, name string, schema interface{}) (string, error)
}

// OpenAIStructured sends strict json_schema requests to a chat endpoint
type OpenAIStructured struct {
	client openai.Client
	model  string
}

func NewOpenAIStructured(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIStructured {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	return &OpenAIStructured{
		client: openai.NewClient(append(all, opts...)...),
		model:  model,
	}
}

func (c *OpenAIStructured) CompleteJSON(ctx context.Context, system, user, name string, schema interface{}) (string, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String("YouTube metadata for a narrated video"),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(c.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	raw := strings.TrimSpace(chatCompletion.Choices[0].Message.Content)
	if raw == "" {
		return "", fmt.Errorf("OpenAI returned empty response. Finish reason: %s", chatCompletion.Choices[0].FinishReason)
	}
	return raw, nil
}
