package anthropicprovider

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"

	"toolrunner/internal/llm/core"
)

// applyStartUsage maps message_start and whole-response usage counters to canonical fields.
func applyStartUsage(dst *core.Usage, usage anthropic.Usage) {
	dst.InputTokens = int(usage.InputTokens)
	dst.OutputTokens = int(usage.OutputTokens)
	dst.CacheReadTokens = int(usage.CacheReadInputTokens)
	dst.CacheWriteTokens = int(usage.CacheCreationInputTokens)
}

// applyDeltaUsage maps message_delta usage counters. The service reports
// cumulative totals, and zero input counters mean "unchanged".
func applyDeltaUsage(dst *core.Usage, usage anthropic.MessageDeltaUsage) {
	if usage.InputTokens > 0 {
		dst.InputTokens = int(usage.InputTokens)
	}
	dst.OutputTokens = int(usage.OutputTokens)
	if usage.CacheReadInputTokens > 0 {
		dst.CacheReadTokens = int(usage.CacheReadInputTokens)
	}
	if usage.CacheCreationInputTokens > 0 {
		dst.CacheWriteTokens = int(usage.CacheCreationInputTokens)
	}
}
