// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 LabRouter Authors

// Package chooser asks an OpenAI chat model to pick a lab slug from a menu.
package chooser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/instruqt"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/resolver"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
)

const systemPrompt = "You map prompts to lab slugs."

// ToolName is the function the model is forced to call with its pick.
const ToolName = "choose_slug"

var chooseSlugTool = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
	Name:        ToolName,
	Description: openai.String("Select the slug of the most relevant lab."),
	Parameters: openai.FunctionParameters{
		"type": "object",
		"properties": map[string]any{
			"slug": map[string]any{"type": "string"},
		},
		"required": []string{"slug"},
	},
})

// Config selects the model and endpoint.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// HTTPClient carries outbound requests. Nil uses the SDK default.
	HTTPClient *http.Client

	// MaxRetries is passed to the SDK. Zero disables retries.
	MaxRetries int
}

// OpenAI implements resolver.Chooser.
type OpenAI struct {
	client openai.Client
	model  string
	log    *slog.Logger
}

// New returns nil when no API key is configured.
func New(cfg Config, log *slog.Logger) *OpenAI {
	if cfg.APIKey == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, option.WithMaxRetries(max(cfg.MaxRetries, 0)))
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		log:    logutil.NoopIfNil(log),
	}
}

// ChooseSlug returns the model's pick, or "" when rate limited.
func (c *OpenAI) ChooseSlug(ctx context.Context, prompt string, menu []instruqt.Track) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Prompt: %s\n\nAvailable labs:\n%s", prompt, resolver.Menu(menu))),
		},
		Tools: []openai.ChatCompletionToolUnionParam{chooseSlugTool},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: ToolName},
			},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			c.log.Warn("openai quota exceeded, skipping fallback")
			return "", nil
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	msg := resp.Choices[0].Message
	var slug string
	for _, call := range msg.ToolCalls {
		if call.Function.Name == ToolName {
			slug = ParseSlug(call.Function.Arguments)
			break
		}
	}
	if slug == "" {
		// Compatible endpoints may ignore tool_choice and answer in text.
		slug = ParseSlug(msg.Content)
	}
	c.log.Debug("openai chose slug", "slug", slug, "model", c.model)
	return slug, nil
}

// ParseSlug extracts the slug from a model reply. It accepts a bare JSON
// object, one wrapped in prose or code fences, or a lone slug token.
func ParseSlug(content string) string {
	content = strings.TrimSpace(content)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		var out struct {
			Slug string `json:"slug"`
		}
		if json.Unmarshal([]byte(content[start:end+1]), &out) == nil {
			return strings.TrimSpace(out.Slug)
		}
	}
	content = strings.Trim(content, "`\"' \n")
	if content == "" || strings.ContainsAny(content, " \t\n{}") {
		return ""
	}
	return content
}

var _ resolver.Chooser = (*OpenAI)(nil)
