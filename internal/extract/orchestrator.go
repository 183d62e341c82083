package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
	"github.com/toyiyo/nimble-pnl-sub019/internal/registry"
)

// Attempt is the outcome of a successful orchestrator run: the reassembled
// model text plus bookkeeping about which models were tried.
type Attempt struct {
	Text            string
	Truncated       bool
	ModelUsed       string
	AttemptedModels []string
}

// Orchestrator drives the fallback chain for one use case: it walks the
// registry in priority order, retrying each model on transient failures and
// skipping ahead on terminal ones. Models are tried strictly one at a time;
// the first accumulated response short-circuits the rest of the chain.
type Orchestrator struct {
	registry    *registry.Registry
	caller      provider.Caller
	streamLimit int
	maxTokens   int
	log         *slog.Logger

	// sleep is swappable for tests; defaults to a context-aware time.Sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires a fallback chain over a provider caller. streamLimit
// bounds the accumulated response; maxTokens is the caller-requested output
// ceiling, clamped per model.
func NewOrchestrator(reg *registry.Registry, caller provider.Caller, streamLimit, maxTokens int, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		registry:    reg,
		caller:      caller,
		streamLimit: streamLimit,
		maxTokens:   maxTokens,
		log:         log,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the fallback state machine for one document. It returns the
// first successfully accumulated response (truncation counts as success), or
// ErrAllModelsExhausted once every candidate's budget is spent.
func (o *Orchestrator) Run(ctx context.Context, doc provider.Document) (*Attempt, error) {
	attempted := make([]string, 0, o.registry.Len())

	for _, model := range o.registry.ListModels() {
		attempted = append(attempted, model.Name)

		text, truncated, ok := o.tryModel(ctx, model, doc)
		if ok {
			return &Attempt{
				Text:            text,
				Truncated:       truncated,
				ModelUsed:       model.Name,
				AttemptedModels: attempted,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	o.log.Error("extract.exhausted", "attempted_models", attempted)
	return nil, ErrAllModelsExhausted
}

// tryModel spends one model's retry budget. ok=false means advance to the
// next candidate.
func (o *Orchestrator) tryModel(ctx context.Context, model registry.ModelCandidate, doc provider.Document) (text string, truncated bool, ok bool) {
	req := provider.BuildRequest(model, doc, o.maxTokens)

	for attempt := 0; ; attempt++ {
		start := time.Now()
		body, err := o.caller.Call(ctx, req)
		if err == nil {
			text, truncated, err = provider.ReadStream(model.Name, body, o.streamLimit, o.log)
			if err == nil {
				o.logAttempt(model.Name, attempt, start, "success")
				return text, truncated, true
			}
			// A failed stream read is an attempt failure like any transport
			// problem: retry within budget, then advance.
			o.logAttempt(model.Name, attempt, start, "stream_error")
		} else if rej, isRej := provider.AsRejection(err); isRej {
			switch rej.Kind {
			case provider.RejectionRateLimited:
				o.logAttempt(model.Name, attempt, start, "rate_limited")
			case provider.RejectionServer:
				o.logAttempt(model.Name, attempt, start, "server_error")
			default:
				// Moderation blocks and other 4xx are terminal for this
				// model: no retry, advance immediately.
				o.logAttempt(model.Name, attempt, start, string(rej.Kind))
				return "", false, false
			}
		} else {
			o.logAttempt(model.Name, attempt, start, "transport_error")
		}

		if attempt >= model.MaxRetries {
			return "", false, false
		}
		// Exponential backoff: 1s, 2s, 4s, ...
		if serr := o.sleep(ctx, time.Duration(1<<uint(attempt))*time.Second); serr != nil {
			return "", false, false
		}
	}
}

// logAttempt emits the advisory attempt log; it never affects control flow.
func (o *Orchestrator) logAttempt(model string, attempt int, start time.Time, outcome string) {
	o.log.Info("extract.attempt",
		"model", model,
		"attempt", attempt,
		"outcome", outcome,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}
