package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Options configures a concrete backend instance.
type Options struct {
	// Model is the default model identifier used when a call does not
	// specify one.
	Model string

	// Temperature applied when a call does not specify one.
	Temperature float64

	// MaxOutputTokens caps completion length. Zero uses the SDK default.
	MaxOutputTokens int
}

// GeminiProvider backs the provider interface with the Google GenAI SDK.
type GeminiProvider struct {
	name    string
	client  *genai.Client
	opts    Options
	history *historyStore
}

// NewGeminiProvider creates a Gemini-backed provider with the given API key.
func NewGeminiProvider(ctx context.Context, name, apiKey string, opts Options) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredential, name)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{
		name:    name,
		client:  client,
		opts:    opts,
		history: newHistoryStore(),
	}, nil
}

// Name returns the configured provider name.
func (p *GeminiProvider) Name() string { return p.name }

// Available reports whether the provider is ready to serve calls.
func (p *GeminiProvider) Available() bool { return p.client != nil }

// Complete issues a one-shot prompt and returns the full reply text.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return p.generate(ctx, contents, opts)
}

// Converse continues (or starts) a multi-turn conversation.
func (p *GeminiProvider) Converse(ctx context.Context, handle, message string, opts CompleteOptions) (ConverseResult, error) {
	handle, turns, err := p.history.open(handle)
	if err != nil {
		return ConverseResult{}, wrap(p.name, ClassPermanent, err)
	}

	contents := make([]*genai.Content, 0, len(turns)+1)
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	reply, err := p.generate(ctx, contents, opts)
	if err != nil {
		return ConverseResult{}, err
	}
	p.history.commit(handle, message, reply)
	return ConverseResult{Handle: handle, Reply: reply}, nil
}

// CloseConversation discards the history kept for handle.
func (p *GeminiProvider) CloseConversation(handle string) {
	p.history.drop(handle)
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, opts CompleteOptions) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = p.opts.Model
	}

	cfg := &genai.GenerateContentConfig{}
	temp := opts.Temperature
	if temp == 0 {
		temp = p.opts.Temperature
	}
	if temp > 0 {
		cfg.Temperature = genai.Ptr(float32(temp))
	}
	maxTok := opts.MaxOutputTokens
	if maxTok == 0 {
		maxTok = p.opts.MaxOutputTokens
	}
	if maxTok > 0 {
		cfg.MaxOutputTokens = int32(maxTok)
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", p.classify(err)
	}

	text := resp.Text()
	if text == "" {
		return "", wrap(p.name, ClassTransient, ErrEmptyReply)
	}
	return text, nil
}

// classify folds GenAI SDK errors into the provider error taxonomy.
func (p *GeminiProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrap(p.name, ClassCancelled, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return wrapStatus(p.name, apiErr.Code, 0, err)
	}
	// Network-level failures without an HTTP status are retryable.
	return wrap(p.name, ClassTransient, err)
}
