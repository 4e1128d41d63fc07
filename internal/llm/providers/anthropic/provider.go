package anthropicprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"toolrunner/internal/llm/core"
)

// Config configures the Anthropic provider.
type Config struct {
	APIKey       string
	BaseURL      string
	Version      string
	HTTPClient   *http.Client
	Retry        core.RetryPolicy
	// ModelPricing prices usage by model id; see core.PricingTable.Lookup.
	ModelPricing core.PricingTable
}

// Provider implements core.MessageService on top of the official anthropic-sdk-go client.
type Provider struct {
	apiKey  string
	retry   core.RetryPolicy
	pricing core.PricingTable

	client anthropic.Client
}

var _ core.MessageService = (*Provider)(nil)

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	version := strings.TrimSpace(cfg.Version)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	clientOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // retries are driven by core.Retry
	}
	if baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}
	if version != "" {
		clientOptions = append(clientOptions, option.WithHeader("anthropic-version", version))
	}

	return &Provider{
		apiKey:  apiKey,
		retry:   cfg.Retry.WithDefaults(),
		pricing: cfg.ModelPricing,
		client:  anthropic.NewClient(clientOptions...),
	}
}

// Create performs one non-streaming Messages API call.
func (p *Provider) Create(ctx context.Context, req *core.Request) (*core.Message, error) {
	params, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	var msg *core.Message
	retry := p.retry.Override(req.Retry)
	err = core.Retry(ctx, retry, func(ctx context.Context) error {
		resp, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return classifyFailure(err, fmt.Errorf("anthropic create: %w", err))
		}
		converted, err := fromSDKMessage(resp)
		if err != nil {
			return err
		}
		converted.Usage.CostUSD = p.calculateCost(req.Model, converted.Usage)
		msg = converted
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Stream executes a single streaming Messages API call. Events mirror the
// service protocol one to one; a failure ends the channel with EventError.
func (p *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.StreamEvent, error) {
	params, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	events := make(chan core.StreamEvent, 1)
	retry := p.retry.Override(req.Retry)

	go func() {
		defer close(events)
		state := &streamState{}
		err := core.Retry(ctx, retry, func(ctx context.Context) error {
			return p.streamOnce(ctx, params, req.Model, events, state)
		}, func() bool { return !state.emitted })
		if err != nil {
			core.SendTerminalEvent(ctx, events, core.StreamEvent{
				Type: core.EventError,
				Err:  fmt.Errorf("anthropic stream: %w", err),
			})
		}
	}()

	return events, nil
}

func (p *Provider) prepare(req *core.Request) (anthropic.MessageNewParams, error) {
	if p == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic provider is nil")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return anthropic.MessageNewParams{}, core.ErrMissingAPIKey
	}
	return toAnthropicSDKParams(req)
}

// streamState tracks one logical stream request across retry attempts.
type streamState struct {
	usage   core.Usage
	emitted bool
	stopped bool
}

// streamOnce consumes one SDK stream and forwards protocol events.
func (p *Provider) streamOnce(
	ctx context.Context,
	params anthropic.MessageNewParams,
	model string,
	events chan<- core.StreamEvent,
	state *streamState,
) error {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, ok, err := p.convertSDKStreamEvent(stream.Current(), model, state)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := core.SendEvent(ctx, events, event); err != nil {
			return err
		}
		state.emitted = true
		if event.Type == core.EventMessageStop {
			state.stopped = true
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := stream.Err(); err != nil {
		return classifyFailure(err, fmt.Errorf("anthropic sdk stream: %w", err))
	}

	if state.stopped {
		return nil
	}
	return core.Transient(errors.New("anthropic stream ended without message_stop"))
}

// convertSDKStreamEvent maps one raw SDK event onto the protocol event it
// represents. Pings and other out-of-protocol events report ok=false.
func (p *Provider) convertSDKStreamEvent(
	event anthropic.MessageStreamEventUnion,
	model string,
	state *streamState,
) (core.StreamEvent, bool, error) {
	switch variant := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		applyStartUsage(&state.usage, variant.Message.Usage)
		state.usage.TotalTokens = state.usage.TokenCount()
		state.usage.CostUSD = p.calculateCost(model, state.usage)
		return core.StreamEvent{
			Type: core.EventMessageStart,
			Message: &core.Message{
				ID:   variant.Message.ID,
				Role: core.RoleAssistant,
			},
			Usage: state.usage.Clone(),
		}, true, nil

	case anthropic.ContentBlockStartEvent:
		block, err := fromSDKStartBlock(variant.ContentBlock)
		if err != nil {
			return core.StreamEvent{}, false, err
		}
		return core.StreamEvent{
			Type:  core.EventContentBlockStart,
			Index: int(variant.Index),
			Block: block,
		}, true, nil

	case anthropic.ContentBlockDeltaEvent:
		return core.StreamEvent{
			Type:  core.EventContentBlockDelta,
			Index: int(variant.Index),
			Delta: fromSDKDelta(variant.Delta),
		}, true, nil

	case anthropic.ContentBlockStopEvent:
		return core.StreamEvent{Type: core.EventContentBlockStop, Index: int(variant.Index)}, true, nil

	case anthropic.MessageDeltaEvent:
		reason, err := mapStopReason(string(variant.Delta.StopReason))
		if err != nil {
			return core.StreamEvent{}, false, err
		}
		applyDeltaUsage(&state.usage, variant.Usage)
		state.usage.TotalTokens = state.usage.TokenCount()
		state.usage.CostUSD = p.calculateCost(model, state.usage)
		return core.StreamEvent{
			Type:       core.EventMessageDelta,
			StopReason: reason,
			Usage:      state.usage.Clone(),
		}, true, nil

	case anthropic.MessageStopEvent:
		return core.StreamEvent{Type: core.EventMessageStop}, true, nil
	}

	return core.StreamEvent{}, false, nil
}

func (p *Provider) calculateCost(model string, usage core.Usage) float64 {
	return p.pricing.Cost(model, usage)
}
