// Package provider defines the model-provider contract consumed by the
// streaming orchestrator. Implementations live under contrib/provider.
package provider

import (
	"context"
	"iter"

	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/message"
)

// Request bundles everything a provider needs for one invocation.
type Request struct {
	SystemPrompt string
	Messages     []*message.Message
	Tools        []map[string]any
	Model        string
	Temperature  float64
	MaxTokens    int64
}

// Provider is a named model provider able to stream a completion.
// The returned sequence yields text chunks in arrival order; a mid-stream
// failure is yielded as the error of the final pair.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request) iter.Seq2[string, error]
}

// Transient wraps a provider failure as recoverable, making it eligible for
// fallback to the next configured provider.
func Transient(name string, err error) error {
	return lexiaerrors.Wrap(lexiaerrors.KindProviderTransient, "provider "+name+" failed", err)
}

// Fatal wraps a validation or policy failure that must propagate immediately
// rather than trigger fallback.
func Fatal(name string, err error) error {
	return lexiaerrors.Wrap(lexiaerrors.KindValidation, "provider "+name+" rejected request", err)
}

// StatusTransient reports whether an HTTP status from a provider SDK is a
// transient failure: timeouts and capacity map to 408/429/5xx.
func StatusTransient(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

// Func adapts a plain function into a Provider; handy for tests.
type Func struct {
	ProviderName string
	StreamFunc   func(ctx context.Context, req *Request) iter.Seq2[string, error]
}

func (f *Func) Name() string {
	return f.ProviderName
}

func (f *Func) Stream(ctx context.Context, req *Request) iter.Seq2[string, error] {
	return f.StreamFunc(ctx, req)
}

// Static returns a provider that yields the given chunks then stops.
func Static(name string, chunks ...string) Provider {
	return &Func{
		ProviderName: name,
		StreamFunc: func(ctx context.Context, _ *Request) iter.Seq2[string, error] {
			return func(yield func(string, error) bool) {
				for _, c := range chunks {
					select {
					case <-ctx.Done():
						yield("", ctx.Err())
						return
					default:
					}
					if !yield(c, nil) {
						return
					}
				}
			}
		},
	}
}
