package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicDefaultMaxTokens is used when neither the call nor the provider
// configuration caps output length; the Messages API requires a cap.
const anthropicDefaultMaxTokens = 4096

// AnthropicProvider backs the provider interface with the Anthropic
// Messages API.
type AnthropicProvider struct {
	name    string
	client  sdk.Client
	opts    Options
	history *historyStore
}

// NewAnthropicProvider creates an Anthropic-backed provider with the given
// API key.
func NewAnthropicProvider(name, apiKey string, opts Options) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredential, name)
	}
	return &AnthropicProvider{
		name:    name,
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		opts:    opts,
		history: newHistoryStore(),
	}, nil
}

// Name returns the configured provider name.
func (p *AnthropicProvider) Name() string { return p.name }

// Available reports whether the provider is ready to serve calls.
func (p *AnthropicProvider) Available() bool { return true }

// Complete issues a one-shot prompt and returns the full reply text.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	msgs := []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))}
	return p.generate(ctx, msgs, opts)
}

// Converse continues (or starts) a multi-turn conversation.
func (p *AnthropicProvider) Converse(ctx context.Context, handle, message string, opts CompleteOptions) (ConverseResult, error) {
	handle, turns, err := p.history.open(handle)
	if err != nil {
		return ConverseResult{}, wrap(p.name, ClassPermanent, err)
	}

	msgs := make([]sdk.MessageParam, 0, len(turns)+1)
	for _, t := range turns {
		if t.Role == RoleAssistant {
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(t.Text)))
		} else {
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(t.Text)))
		}
	}
	msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(message)))

	reply, err := p.generate(ctx, msgs, opts)
	if err != nil {
		return ConverseResult{}, err
	}
	p.history.commit(handle, message, reply)
	return ConverseResult{Handle: handle, Reply: reply}, nil
}

// CloseConversation discards the history kept for handle.
func (p *AnthropicProvider) CloseConversation(handle string) {
	p.history.drop(handle)
}

func (p *AnthropicProvider) generate(ctx context.Context, msgs []sdk.MessageParam, opts CompleteOptions) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = p.opts.Model
	}
	maxTok := opts.MaxOutputTokens
	if maxTok == 0 {
		maxTok = p.opts.MaxOutputTokens
	}
	if maxTok == 0 {
		maxTok = anthropicDefaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTok),
		Messages:  msgs,
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = p.opts.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if opts.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", wrap(p.name, ClassTransient, ErrEmptyReply)
	}
	return sb.String(), nil
}

// classify folds Anthropic SDK errors into the provider error taxonomy.
func (p *AnthropicProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrap(p.name, ClassCancelled, err)
	}
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		var retryAfter time.Duration
		if apierr.Response != nil {
			if v := apierr.Response.Header.Get("retry-after"); v != "" {
				if secs, perr := strconv.Atoi(v); perr == nil {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
		}
		return wrapStatus(p.name, apierr.StatusCode, retryAfter, err)
	}
	return wrap(p.name, ClassTransient, err)
}
