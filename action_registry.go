package magiclink

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/MrEthical07/magiclink/internal/flows"
	"github.com/MrEthical07/magiclink/token"
)

// ActionToken is a verified, unexpired envelope handed to an [ActionHandler].
// The payload is left undecoded.
type ActionToken struct {
	Fingerprint string
	Envelope    *token.Raw
}

// ActionHandler executes one action-token type.
type ActionHandler interface {
	HandleActionToken(ctx context.Context, tok ActionToken) (ConsumeResult, error)
}

// ActionHandlerFunc adapts a function to [ActionHandler].
type ActionHandlerFunc func(ctx context.Context, tok ActionToken) (ConsumeResult, error)

// HandleActionToken implements [ActionHandler].
func (f ActionHandlerFunc) HandleActionToken(ctx context.Context, tok ActionToken) (ConsumeResult, error) {
	return f(ctx, tok)
}

// ExecuteActionToken verifies raw without assuming its type and dispatches it
// to the handler registered for the envelope type. Unknown types fail with
// [ErrWrongTokenType].
func (e *Engine) ExecuteActionToken(ctx context.Context, raw string) (ConsumeResult, error) {
	if e == nil || !e.flows.Initialized() {
		return engineNotReadyResult(), ErrEngineNotReady
	}

	fp := token.Fingerprint(raw)
	env, err := token.Decode[json.RawMessage](e.codec, raw, "")
	if err != nil {
		return e.consumeResult(e.flows.RejectDecode(ctx, fp, err))
	}

	handler, ok := e.actions[env.Type]
	if !ok {
		return e.consumeResult(e.flows.RejectDecode(ctx, fp, token.ErrWrongType))
	}
	e.metricInc(MetricActionTokenDispatched)
	return handler.HandleActionToken(ctx, ActionToken{Fingerprint: fp, Envelope: env})
}

// ActionTypes returns the registered action-token types in sorted order.
func (e *Engine) ActionTypes() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.actions))
	for typ := range e.actions {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// magicLinkAction is the built-in handler for [MagicLinkTokenType].
type magicLinkAction struct {
	engine *Engine
}

func (a magicLinkAction) HandleActionToken(ctx context.Context, tok ActionToken) (ConsumeResult, error) {
	e := a.engine
	start := time.Now()
	defer e.observeLatency(MetricConsumeLatency, start)

	env, err := token.DecodePayload[magicLinkPayload](tok.Envelope)
	if err == nil {
		var claims flows.MagicLinkClaims
		claims, err = e.claimsFromEnvelope(env)
		if err == nil {
			return e.consumeResult(e.flows.ConsumeClaims(ctx, claims, tok.Fingerprint))
		}
	}
	return e.consumeResult(e.flows.RejectDecode(ctx, tok.Fingerprint, err))
}
