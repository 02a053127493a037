package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Issue.SignToken != nil && s.deps.Consume.DecodeToken != nil
}

func (s Service) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	return RunIssue(ctx, req, s.deps.Issue)
}

func (s Service) Consume(ctx context.Context, raw string) ConsumeResult {
	return RunConsume(ctx, raw, s.deps.Consume)
}

func (s Service) ConsumeClaims(ctx context.Context, claims MagicLinkClaims, fingerprint string) ConsumeResult {
	return RunConsumeClaims(ctx, claims, fingerprint, s.deps.Consume)
}

func (s Service) RejectDecode(ctx context.Context, fingerprint string, err error) ConsumeResult {
	return RejectDecode(ctx, fingerprint, err, s.deps.Consume)
}
