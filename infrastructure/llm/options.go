package llm

import "time"

// Parameter bounds shared by all providers.
const (
	// DefaultMaxTokens is used when a request does not set max_tokens.
	DefaultMaxTokens = 2048

	// MinTemperature and MaxTemperature bound the sampling temperature.
	// The upper bound is 2.0 to accommodate Gemini.
	MinTemperature = 0.0
	MaxTemperature = 2.0

	// MinTimeout and MaxTimeout bound the per-request timeout.
	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// RequestOptions is the provider-neutral form of per-request parameters
// extracted from the options map passed to Complete.
type RequestOptions struct {
	Model     string
	MaxTokens int

	// Temperature is nil when the provider default should apply.
	Temperature *float64

	// System carries the system prompt; providers that lack a dedicated
	// system role prepend it to the user prompt.
	System string

	// Extra holds provider-specific options not covered above.
	Extra map[string]any
}

// ParseRequestOptions normalizes the options map into RequestOptions,
// falling back to defaultModel and dropping out-of-range values.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		Model:     defaultModel,
		MaxTokens: DefaultMaxTokens,
		Extra:     make(map[string]any),
	}

	for k, v := range opts {
		switch k {
		case "model":
			if s, ok := v.(string); ok && s != "" {
				options.Model = s
			}
		case "max_tokens":
			if n, ok := asInt(v); ok && n > 0 {
				options.MaxTokens = n
			}
		case "temperature":
			if f, ok := asFloat64(v); ok && f >= MinTemperature && f <= MaxTemperature {
				t := f
				options.Temperature = &t
			}
		case "system":
			if s, ok := v.(string); ok {
				options.System = s
			}
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// ValidateTimeout clamps a request timeout into the supported range.
// Zero and negative values mean "use the provider default" and pass through
// as zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != n { // NaN
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	default:
		return 0, false
	}
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
