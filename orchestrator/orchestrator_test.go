package orchestrator

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweetpotato0/lexia/audit"
	"github.com/sweetpotato0/lexia/decision"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/intent"
	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/provider"
)

func failing(name string) *countingProvider {
	return &countingProvider{
		name: name,
		stream: func(yield func(string, error) bool) {
			yield("", provider.Transient(name, errors.New("capacity")))
		},
	}
}

func succeeding(name string, chunks ...string) *countingProvider {
	return &countingProvider{
		name: name,
		stream: func(yield func(string, error) bool) {
			for _, c := range chunks {
				if !yield(c, nil) {
					return
				}
			}
		},
	}
}

type countingProvider struct {
	name   string
	calls  atomic.Int64
	stream iter.Seq2[string, error]
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Stream(context.Context, *provider.Request) iter.Seq2[string, error] {
	p.calls.Add(1)
	return p.stream
}

func testDecision() decision.Decision {
	return decision.Decision{
		Intent:      intent.IntentCaseChat,
		Model:       "claude-sonnet-4-5-20250929",
		Temperature: 0.5,
		MaxTokens:   512,
		TraceID:     "trace-1",
		CallerID:    "user-1",
		Credits:     2,
	}
}

func userMessages() []*message.Message {
	return []*message.Message{message.NewMessage(message.RoleUser, "¿qué plazos tengo?")}
}

func drain(t *testing.T, run *Run) (string, error) {
	t.Helper()
	var sb strings.Builder
	var streamErr error
	for tok, err := range run.Stream {
		if err != nil {
			streamErr = err
			break
		}
		sb.WriteString(tok)
	}
	return sb.String(), streamErr
}

func TestRunFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("first failures fall through to the last provider", func(t *testing.T) {
		first := failing("claude")
		second := failing("openai")
		third := succeeding("gemini", "todo ", "bien")

		o := New(WithProviders(first, second, third), WithMaxAttempts(3))
		run, err := o.Run(ctx, userMessages(), testDecision(), nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		text, streamErr := drain(t, run)
		if streamErr != nil {
			t.Fatalf("stream error: %v", streamErr)
		}
		if text != "todo bien" {
			t.Errorf("unexpected text %q", text)
		}

		result := <-run.Done
		if result.Err != nil {
			t.Fatalf("result error: %v", result.Err)
		}
		if result.Decision.ServedBy != "gemini" {
			t.Errorf("serving provider not surfaced, got %q", result.Decision.ServedBy)
		}
		if first.calls.Load() != 1 || second.calls.Load() != 1 || third.calls.Load() != 1 {
			t.Error("each provider should be tried exactly once")
		}
	})

	t.Run("all failing yields one aggregated transient error", func(t *testing.T) {
		o := New(WithProviders(failing("claude"), failing("openai"), failing("gemini")))
		run, err := o.Run(ctx, userMessages(), testDecision(), nil)
		if err != nil {
			t.Fatalf("run refused: %v", err)
		}

		_, streamErr := drain(t, run)
		if lexiaerrors.KindOf(streamErr) != lexiaerrors.KindProviderTransient {
			t.Errorf("expected aggregated provider_transient, got %v", streamErr)
		}

		result := <-run.Done
		if lexiaerrors.KindOf(result.Err) != lexiaerrors.KindProviderTransient {
			t.Errorf("result should carry the aggregated error, got %v", result.Err)
		}
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		providers := []provider.Provider{failing("a"), failing("b"), failing("c"), failing("d")}
		o := New(WithProviders(providers...), WithMaxAttempts(2))
		run, _ := o.Run(ctx, userMessages(), decision.Decision{Model: "desconocido", CallerID: "u", TraceID: "t"}, nil)
		drain(t, run)
		<-run.Done

		total := int64(0)
		for _, p := range providers {
			total += p.(*countingProvider).calls.Load()
		}
		if total != 2 {
			t.Errorf("expected exactly 2 attempts, got %d", total)
		}
	})

	t.Run("fatal provider error does not fall back", func(t *testing.T) {
		fatal := &countingProvider{
			name: "claude",
			stream: func(yield func(string, error) bool) {
				yield("", provider.Fatal("claude", errors.New("bad request")))
			},
		}
		next := succeeding("openai", "nunca")

		o := New(WithProviders(fatal, next))
		run, _ := o.Run(ctx, userMessages(), testDecision(), nil)
		_, streamErr := drain(t, run)
		<-run.Done

		if lexiaerrors.KindOf(streamErr) != lexiaerrors.KindValidation {
			t.Errorf("expected validation error, got %v", streamErr)
		}
		if next.calls.Load() != 0 {
			t.Error("fatal errors must not trigger fallback")
		}
	})
}

func TestRunUsageRecording(t *testing.T) {
	ctx := context.Background()

	t.Run("usage recorded once after completion", func(t *testing.T) {
		usage := audit.NewInMemoryStore()
		rec := recorderFunc(func(ctx context.Context, r *audit.UsageRecord) error {
			return usage.Append(ctx, r)
		})

		o := New(WithProviders(succeeding("claude", "hola ", "letrado")), WithRecorder(rec))
		run, _ := o.Run(ctx, userMessages(), testDecision(), nil)
		drain(t, run)
		result := <-run.Done

		records := usage.Records()
		if len(records) != 1 {
			t.Fatalf("expected 1 usage record, got %d", len(records))
		}
		if records[0].Provider != "claude" || records[0].TraceID != "trace-1" {
			t.Errorf("record fields wrong: %+v", records[0])
		}
		if records[0].Tokens <= 0 || result.Tokens != records[0].Tokens {
			t.Errorf("token count not recorded: %+v", records[0])
		}
	})

	t.Run("no usage recorded when every provider fails", func(t *testing.T) {
		usage := audit.NewInMemoryStore()
		rec := recorderFunc(func(ctx context.Context, r *audit.UsageRecord) error {
			return usage.Append(ctx, r)
		})

		o := New(WithProviders(failing("claude")), WithRecorder(rec))
		run, _ := o.Run(ctx, userMessages(), testDecision(), nil)
		drain(t, run)
		<-run.Done

		if len(usage.Records()) != 0 {
			t.Error("failed runs must not consume credits")
		}
	})

	t.Run("audit capture survives a disconnecting client", func(t *testing.T) {
		usage := audit.NewInMemoryStore()
		rec := recorderFunc(func(ctx context.Context, r *audit.UsageRecord) error {
			return usage.Append(ctx, r)
		})

		o := New(WithProviders(succeeding("claude", "resumen completo")), WithRecorder(rec))
		clientCtx, cancel := context.WithCancel(ctx)
		run, _ := o.Run(clientCtx, userMessages(), testDecision(), nil)

		// Consume the stream fully, then drop the connection.
		drain(t, run)
		cancel()

		select {
		case result := <-run.Done:
			if result.Text != "resumen completo" {
				t.Errorf("audit text lost: %q", result.Text)
			}
			if len(usage.Records()) != 1 {
				t.Error("server-side persistence must not depend on the client connection")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("driver did not finish")
		}
	})
}

func TestChainFor(t *testing.T) {
	o := New(WithProviders(succeeding("claude"), succeeding("openai"), succeeding("gemini")))

	chain := o.chainFor("gpt-4o")
	if chain[0].Name() != "openai" {
		t.Errorf("gpt model should prefer openai, got %s", chain[0].Name())
	}
	if len(chain) != 3 {
		t.Errorf("chain must keep all providers, got %d", len(chain))
	}

	chain = o.chainFor("modelo-raro")
	if chain[0].Name() != "claude" {
		t.Error("unknown family keeps configured priority order")
	}
}

type recorderFunc func(context.Context, *audit.UsageRecord) error

func (f recorderFunc) Record(ctx context.Context, rec *audit.UsageRecord) error {
	return f(ctx, rec)
}
