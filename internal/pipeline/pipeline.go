// Package pipeline composes the single entry point every mounted-engine
// request passes through: authenticate, authorize, dispatch, audit, in
// that order (§4.11). Administrative paths reachable while sealed (seal
// status, initialize, submit-share) are not routed through Pipeline at
// all — the transport layer in internal/transport calls Server's
// seal-controller methods directly for those, exactly as the spec's step-ordering
// implies ("All other paths fail with a sealed error before step 2").
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/audit"
	"github.com/zvault/zvault/internal/engine"
	"github.com/zvault/zvault/internal/monitoring"
	"github.com/zvault/zvault/internal/mount"
	"github.com/zvault/zvault/internal/security"
	"github.com/zvault/zvault/internal/token"
)

// Request is the transport-neutral shape of an incoming call: the
// transport contract's (method, path, token?, headers, body-bytes)
// collapsed to what the pipeline actually consumes (§6).
type Request struct {
	Token     string
	Path      string
	Operation engine.Operation
	Data      map[string]any
}

// Response is what the pipeline hands back to the transport layer for
// rendering into an HTTP response body.
type Response struct {
	StatusCode int
	Data       map[string]any
	ErrorLabel string
}

// SealChecker reports whether the barrier currently refuses operations.
// A narrow interface over barrier.Barrier so pipeline does not need to
// import barrier directly just to ask one question.
type SealChecker interface {
	IsSealed() bool
}

// TokenLookup is the narrow capability the pipeline needs from the token
// store.
type TokenLookup interface {
	Lookup(ctx context.Context, plaintext string) (token.Attributes, error)
}

// PolicyResolver is the narrow capability the pipeline needs from the
// policy store: turn a token's attached policy names into evaluable
// Policy values.
type PolicyResolver interface {
	GetAll(ctx context.Context, names []string) ([]token.Policy, error)
}

// capabilityOf maps an engine operation to the capability vocabulary the
// policy engine evaluates against.
func capabilityOf(op engine.Operation) token.Capability {
	switch op {
	case engine.OpCreate:
		return token.CapabilityCreate
	case engine.OpRead:
		return token.CapabilityRead
	case engine.OpUpdate:
		return token.CapabilityUpdate
	case engine.OpDelete:
		return token.CapabilityDelete
	case engine.OpList:
		return token.CapabilityList
	default:
		return token.Capability(op)
	}
}

// Pipeline wires the components named in §4.11 into the ordered
// auth -> mount -> policy -> engine -> audit dispatch every request goes
// through.
type Pipeline struct {
	seal     SealChecker
	tokens   TokenLookup
	policies PolicyResolver
	router   *mount.Router
	auditLog *audit.Log
	logger   *slog.Logger
	metrics  monitoring.MetricsCollector
}

// New returns a Pipeline over the given components. logger may be nil, in
// which case slog.Default() is used. Metrics default to a no-op
// collector; call SetMetrics to wire in a real one (SPEC_FULL.md §A's
// Prometheus-backed MetricsCollector).
func New(seal SealChecker, tokens TokenLookup, policies PolicyResolver, router *mount.Router, auditLog *audit.Log, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{seal: seal, tokens: tokens, policies: policies, router: router, auditLog: auditLog, logger: logger, metrics: &monitoring.NoOpMetricsCollector{}}
}

// SetMetrics installs the collector every request's outcome and latency
// are reported to.
func (p *Pipeline) SetMetrics(m monitoring.MetricsCollector) {
	if m != nil {
		p.metrics = m
	}
}

// Handle implements the ordered pipeline. Every step's possible failure
// corresponds to one of the error kinds in §7 and is mapped to an HTTP
// status by zvault.HTTPStatus (over apperr.HTTPStatus) in the transport
// adapter; Handle itself returns the error unclassified so the caller
// (internal/transport) does the mapping once, in one place.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	tags := map[string]string{"operation": string(req.Operation)}
	defer func() {
		p.metrics.RecordTiming("pipeline.request.duration", time.Since(start), tags)
	}()
	p.metrics.IncrementCounter("pipeline.request.total", tags)

	// Step 0 (implicit in "all other paths fail before step 2"): every
	// path Pipeline.Handle ever sees is a mounted-engine path, none of
	// which are in the sealed-reachable administrative set, so a sealed
	// barrier rejects unconditionally and no storage put occurs.
	if p.seal.IsSealed() {
		p.metrics.IncrementCounter("pipeline.request.sealed", tags)
		return Response{}, apperr.Sealed
	}

	// Step 1-2: extract and look up the token.
	if req.Token == "" {
		security.LogSecurityEvent("auth.missing_token", "request with no token presented", security.SecurityLevelMedium)
		return p.finish(ctx, req, nil, apperr.Unauthenticated)
	}
	attrs, err := p.tokens.Lookup(ctx, req.Token)
	if err != nil {
		security.LogSecurityEvent("auth.token_lookup_failed", "presented token did not resolve", security.SecurityLevelMedium)
		return p.finish(ctx, req, nil, err)
	}

	// Step 3: resolve the path to a mount.
	resolved, err := p.router.Resolve(req.Path)
	if err != nil {
		return p.finish(ctx, req, &attrs, err)
	}

	// Step 4: evaluate policy.
	policies, err := p.policies.GetAll(ctx, attrs.Policies)
	if err != nil {
		return p.finish(ctx, req, &attrs, err)
	}
	capability := capabilityOf(req.Operation)
	if err := token.Evaluate(policies, req.Path, capability); err != nil {
		security.LogSecurityEvent("authz.denied", "policy evaluation denied "+req.Path, security.SecurityLevelHigh)
		return p.finish(ctx, req, &attrs, err)
	}

	// Step 5: dispatch to the engine.
	engineResp, engineErr := resolved.Engine.Handle(ctx, engine.Request{
		Operation: req.Operation,
		Subpath:   resolved.Subpath,
		Data:      req.Data,
	})

	// Step 6-7: compose and write the audit entry; on total audit
	// failure, compensate any mutation the engine already applied and
	// surface apperr.AuditFailure instead of the engine's own result.
	resp, auditErr := p.finishEngine(ctx, req, &attrs, engineResp, engineErr)
	return resp, auditErr
}

// finish handles the early-exit paths (unauthenticated, not-found,
// forbidden) that never reach an engine, still producing exactly one
// audit entry per request (testable property #8).
func (p *Pipeline) finish(ctx context.Context, req Request, attrs *token.Attributes, resultErr error) (Response, error) {
	entry := p.buildEntry(req, attrs, engine.Response{}, resultErr)
	if err := p.auditLog.Write(ctx, entry); err != nil {
		p.metrics.IncrementCounter("audit.failure", nil)
		p.logger.Error("audit write failed for rejected request", "path", req.Path, "error", err)
		return Response{}, err
	}
	return Response{}, resultErr
}

// finishEngine composes the audit entry for a request that actually
// reached the engine, applying the fail-closed compensation contract
// (§7) when the audit write itself fails.
func (p *Pipeline) finishEngine(ctx context.Context, req Request, attrs *token.Attributes, engineResp engine.Response, engineErr error) (Response, error) {
	entry := p.buildEntry(req, attrs, engineResp, engineErr)

	if err := p.auditLog.Write(ctx, entry); err != nil {
		p.metrics.IncrementCounter("audit.failure", nil)
		if engineErr == nil && engineResp.Compensate != nil {
			if compErr := engineResp.Compensate(ctx); compErr != nil {
				p.logger.Error("compensation failed after audit failure",
					"path", req.Path, "error", compErr)
			}
		}
		p.logger.Error("audit write failed", "path", req.Path, "error", err)
		return Response{}, err
	}

	if engineErr != nil {
		return Response{}, engineErr
	}
	return Response{StatusCode: 200, Data: engineResp.Data}, nil
}

func (p *Pipeline) buildEntry(req Request, attrs *token.Attributes, engineResp engine.Response, resultErr error) audit.Entry {
	entry := audit.NewEntry()
	entry.Operation = string(req.Operation)
	entry.Path = req.Path

	key := p.auditLog.HMACKey()
	entry.RequestFingerprint = key.Fingerprint(fingerprintBytes(req.Data))
	entry.ResponseFingerprint = key.Fingerprint(fingerprintBytes(engineResp.Data))

	if attrs != nil {
		entry.ActorTokenHMAC = key.Fingerprint([]byte(attrs.DigestHex))
		entry.ActorPolicies = attrs.Policies
	} else {
		entry.ActorTokenHMAC = key.Fingerprint([]byte("anonymous"))
	}

	if resultErr != nil {
		entry.StatusCode = statusFor(resultErr)
		if kind, ok := apperr.KindOf(resultErr); ok {
			entry.ErrorLabel = string(kind)
		} else {
			entry.ErrorLabel = string(apperr.KindInfrastructure)
		}
	} else {
		entry.StatusCode = 200
	}
	return entry
}

func statusFor(err error) int {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return apperr.HTTPStatus(apperr.KindInfrastructure)
	}
	return apperr.HTTPStatus(kind)
}

// fingerprintBytes renders a data map into a stable byte form for HMAC
// fingerprinting. Field order does not need to be canonical across
// requests since fingerprints are only ever compared to themselves
// (same request, same map), never diffed byte-for-byte across entries.
func fingerprintBytes(data map[string]any) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	var buf []byte
	for k, v := range data {
		buf = append(buf, []byte(k)...)
		buf = append(buf, ':')
		buf = append(buf, []byte(formatValue(v))...)
		buf = append(buf, ';')
	}
	return buf
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return ""
	}
}
