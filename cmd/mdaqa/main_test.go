package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huihuang/mdaqa/infrastructure/llm"
	"github.com/huihuang/mdaqa/internal/config"
)

// hangOnceCore blocks its first request until the per-attempt deadline fires
// and answers normally afterwards.
type hangOnceCore struct {
	llm.BaseProvider

	mu    sync.Mutex
	calls int
}

func (h *hangOnceCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	h.mu.Lock()
	h.calls++
	first := h.calls == 1
	h.mu.Unlock()

	if first {
		<-ctx.Done()
		return "", 0, 0, ctx.Err()
	}
	return "ok", 1, 1, nil
}

func (h *hangOnceCore) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// A stalled provider call must burn only its own attempt, not the whole
// retry budget. Retry sits outside the timeout so the second attempt gets a
// fresh deadline and succeeds.
func TestLLMMiddlewareRetriesAfterAttemptTimeout(t *testing.T) {
	lc := config.LLMConfig{
		TimeoutSeconds: 1,
		MaxRetries:     2,
		BaseDelayMS:    1,
		MaxDelayMS:     10,
	}

	core := &hangOnceCore{}
	var wrapped llm.CoreLLM = core
	mw := llmMiddleware(lc, nil)
	// Apply in reverse so the first entry is outermost, as NewClient does.
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}

	response, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", response)
	assert.Equal(t, 2, core.callCount())
}
