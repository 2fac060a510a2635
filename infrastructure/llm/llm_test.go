package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore is a scriptable CoreLLM used across the middleware tests.
type fakeCore struct {
	BaseProvider

	mu        sync.Mutex
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	text string
	err  error
}

func newFakeCore(model string, responses ...fakeResponse) *fakeCore {
	f := &fakeCore{responses: responses}
	f.SetModel(model)
	return f
}

func (f *fakeCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.responses) == 0 {
		return "ok", 10, 5, nil
	}
	next := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	if next.err != nil {
		return "", 0, 0, next.err
	}
	return next.text, 10, 5, nil
}

func (f *fakeCore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func init() {
	RegisterProviderFactory("fake", func(config ClientConfig) (CoreLLM, error) {
		return newFakeCore(config.Model), nil
	})
}

func TestNewClient(t *testing.T) {
	t.Run("creates registered provider", func(t *testing.T) {
		client, err := NewClient("fake", ClientConfig{APIKey: "key", Model: "fake-model"})
		require.NoError(t, err)
		assert.Equal(t, "fake-model", client.GetModel())

		response, err := client.Complete(context.Background(), "hello there", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", response)
	})

	t.Run("requires api key", func(t *testing.T) {
		_, err := NewClient("fake", ClientConfig{Model: "m"})
		assert.ErrorIs(t, err, ErrEmptyAPIKey)
	})

	t.Run("requires model", func(t *testing.T) {
		_, err := NewClient("fake", ClientConfig{APIKey: "key"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		_, err := NewClient("nonexistent", ClientConfig{APIKey: "key", Model: "m"})
		assert.Error(t, err)
	})
}

func TestMiddlewareOrdering(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &taggedLLM{next: next, name: name, order: &order}
		}
	}

	client, err := NewClient("fake", ClientConfig{
		APIKey:     "key",
		Model:      "fake-model",
		Middleware: []Middleware{tag("outer"), tag("inner")},
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type taggedLLM struct {
	next  CoreLLM
	name  string
	order *[]string
}

func (t *taggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*t.order = append(*t.order, t.name)
	return t.next.DoRequest(ctx, prompt, opts)
}

func (t *taggedLLM) GetModel() string  { return t.next.GetModel() }
func (t *taggedLLM) SetModel(m string) { t.next.SetModel(m) }

func TestCompleteWithUsage(t *testing.T) {
	client, err := NewClient("fake", ClientConfig{APIKey: "key", Model: "fake-model"})
	require.NoError(t, err)

	response, tokensIn, tokensOut, err := client.CompleteWithUsage(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", response)
	assert.Equal(t, 10, tokensIn)
	assert.Equal(t, 5, tokensOut)
}

func TestTokenCounter(t *testing.T) {
	tc := NewTokenCounter()

	assert.Equal(t, 0, tc.EstimateTokens(""))
	assert.Equal(t, 25, tc.EstimateTokens(string(make([]byte, 100))))
	assert.Equal(t, 42, tc.GetTokenCount(42, "ignored text"))
	assert.Equal(t, 3, tc.GetTokenCount(0, "exactly 12ch"))
}

var errTransient = errors.New("transient failure")
