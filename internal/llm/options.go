// internal/llm/options.go
package llm

// CallOption customizes a single completion request.
type CallOption func(*callOptions)

type callOptions struct {
	temperature float64
	maxTokens   int
	useReasoner bool
}

func newCallOptions(opts ...CallOption) callOptions {
	call := callOptions{
		temperature: 0.7,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&call)
	}
	return call
}

// WithTemperature sets the sampling temperature for this request.
func WithTemperature(t float64) CallOption {
	return func(o *callOptions) {
		o.temperature = t
	}
}

// WithMaxTokens caps the response length for this request.
func WithMaxTokens(n int) CallOption {
	return func(o *callOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithReasoner routes this request to the reasoning model.
func WithReasoner() CallOption {
	return func(o *callOptions) {
		o.useReasoner = true
	}
}
