package provider

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider backs the provider interface with the OpenAI Chat
// Completions API.
type OpenAIProvider struct {
	name    string
	client  sdk.Client
	opts    Options
	history *historyStore
}

// NewOpenAIProvider creates an OpenAI-backed provider with the given API key.
func NewOpenAIProvider(name, apiKey string, opts Options) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredential, name)
	}
	return &OpenAIProvider{
		name:    name,
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		opts:    opts,
		history: newHistoryStore(),
	}, nil
}

// Name returns the configured provider name.
func (p *OpenAIProvider) Name() string { return p.name }

// Available reports whether the provider is ready to serve calls.
func (p *OpenAIProvider) Available() bool { return true }

// Complete issues a one-shot prompt and returns the full reply text.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	msgs := []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(prompt)}
	return p.generate(ctx, msgs, opts)
}

// Converse continues (or starts) a multi-turn conversation.
func (p *OpenAIProvider) Converse(ctx context.Context, handle, message string, opts CompleteOptions) (ConverseResult, error) {
	handle, turns, err := p.history.open(handle)
	if err != nil {
		return ConverseResult{}, wrap(p.name, ClassPermanent, err)
	}

	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	for _, t := range turns {
		if t.Role == RoleAssistant {
			msgs = append(msgs, sdk.AssistantMessage(t.Text))
		} else {
			msgs = append(msgs, sdk.UserMessage(t.Text))
		}
	}
	msgs = append(msgs, sdk.UserMessage(message))

	reply, err := p.generate(ctx, msgs, opts)
	if err != nil {
		return ConverseResult{}, err
	}
	p.history.commit(handle, message, reply)
	return ConverseResult{Handle: handle, Reply: reply}, nil
}

// CloseConversation discards the history kept for handle.
func (p *OpenAIProvider) CloseConversation(handle string) {
	p.history.drop(handle)
}

func (p *OpenAIProvider) generate(ctx context.Context, msgs []sdk.ChatCompletionMessageParamUnion, opts CompleteOptions) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = p.opts.Model
	}
	if opts.SystemPrompt != "" {
		msgs = append([]sdk.ChatCompletionMessageParamUnion{sdk.SystemMessage(opts.SystemPrompt)}, msgs...)
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: msgs,
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = p.opts.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	maxTok := opts.MaxOutputTokens
	if maxTok == 0 {
		maxTok = p.opts.MaxOutputTokens
	}
	if maxTok > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTok))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", wrap(p.name, ClassTransient, ErrEmptyReply)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify folds OpenAI SDK errors into the provider error taxonomy.
func (p *OpenAIProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrap(p.name, ClassCancelled, err)
	}
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return wrapStatus(p.name, apierr.StatusCode, 0, err)
	}
	return wrap(p.name, ClassTransient, err)
}
