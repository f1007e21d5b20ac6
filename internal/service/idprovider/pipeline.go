package idprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
	"scielocore/internal/xmlsps"
)

// maxUpsertRetries bounds identifier reallocation after a concurrent
// uniqueness conflict on save.
const maxUpsertRetries = 3

// Result reports the outcome of one RequestId call.
type Result struct {
	V3     string
	V2     string
	AopPid string

	// Created is true when no registered document matched and a new
	// record was written.
	Created bool

	// Changed is true when any identifier differs from the submitted
	// ones; XML then carries the rewritten package content.
	Changed bool
	XML     string
}

// Pipeline is the RequestId protocol: resolve, reconcile identifiers,
// rewrite the XML when they changed, and persist.
type Pipeline struct {
	store     repositories.DocumentStore
	requests  repositories.RequestLog
	resolver  *Resolver
	allocator *Allocator
	logger    *slog.Logger
}

func NewPipeline(store repositories.DocumentStore, requests repositories.RequestLog, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		requests:  requests,
		resolver:  NewResolver(store),
		allocator: NewAllocator(store),
		logger:    logger,
	}
}

// RequestID runs the full protocol for one submitted package. The input
// facts must be normalized. Audit logging failures never fail the call.
func (p *Pipeline) RequestID(ctx context.Context, user string, facts *models.DocumentFacts) (*Result, error) {
	req := p.logRequest(ctx, user, facts)

	res, err := p.requestID(ctx, facts)
	p.updateRequest(ctx, req, facts, res, err)
	return res, err
}

func (p *Pipeline) requestID(ctx context.Context, facts *models.DocumentFacts) (*Result, error) {
	if err := facts.Validate(); err != nil {
		return nil, &domain.BadRequestError{Err: err}
	}

	inV3, inV2, inAop := facts.V3, facts.V2, facts.AopPid

	registered, found, err := p.resolver.Resolve(ctx, facts)
	if err != nil {
		return nil, err
	}

	var v3, v2, aopPid string
	if found {
		// A published document never goes back to ahead-of-print.
		if registered.HasIssuePlacement() && !facts.HasIssuePlacement() {
			return nil, domain.ErrNotAllowedAOPInput
		}
		v3, v2, aopPid, err = p.reconcile(ctx, facts, registered)
		if err != nil {
			return nil, err
		}
	} else {
		v3, v2, aopPid, err = p.allocate(ctx, facts)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		V3:      v3,
		V2:      v2,
		AopPid:  aopPid,
		Created: !found,
		Changed: v3 != inV3 || v2 != inV2 || aopPid != inAop,
		XML:     facts.XML,
	}
	if res.Changed {
		rewritten, err := xmlsps.RewriteIDs(facts.XML, v3, v2, aopPid)
		if err != nil {
			return nil, &domain.BadRequestError{Err: err}
		}
		res.XML = rewritten
		facts.XML = rewritten
	}

	if err := p.save(ctx, facts, res); err != nil {
		return nil, err
	}
	return res, nil
}

// reconcile merges the submitted identifiers with the registered ones.
// Registered identifiers win over conflicting input. When an
// ahead-of-print document arrives placed in an issue, its registered v2
// becomes the previous pid and a fresh issue v2 is minted unless the
// package already carries one.
func (p *Pipeline) reconcile(ctx context.Context, facts *models.DocumentFacts, registered *models.DocumentRecord) (v3, v2, aopPid string, err error) {
	v3 = registered.V3

	if !registered.HasIssuePlacement() && facts.HasIssuePlacement() {
		aopPid = registered.V2
		v2 = facts.V2
		if v2 == "" {
			v2, err = p.allocator.FreshV2(ctx, facts)
			if err != nil {
				return "", "", "", err
			}
		}
		return v3, v2, aopPid, nil
	}

	v2 = registered.V2
	if v2 == "" {
		v2 = facts.V2
	}
	if v2 == "" {
		v2, err = p.allocator.FreshV2(ctx, facts)
		if err != nil {
			return "", "", "", err
		}
	}
	aopPid = registered.AopPid
	if aopPid == "" {
		aopPid = facts.AopPid
	}
	return v3, v2, aopPid, nil
}

// allocate provides identifiers for a document seen for the first time,
// keeping submitted ones when they are free.
func (p *Pipeline) allocate(ctx context.Context, facts *models.DocumentFacts) (v3, v2, aopPid string, err error) {
	v3 = facts.V3
	if v3 != "" {
		taken, err := p.store.ExistsV3(ctx, v3)
		if err != nil {
			return "", "", "", fmt.Errorf("check v3 %s: %w", v3, err)
		}
		if taken {
			v3 = ""
		}
	}
	if v3 == "" {
		v3, err = p.allocator.FreshV3(ctx)
		if err != nil {
			return "", "", "", err
		}
	}

	v2 = facts.V2
	if v2 != "" {
		taken, err := p.store.ExistsV2(ctx, v2)
		if err != nil {
			return "", "", "", fmt.Errorf("check v2 %s: %w", v2, err)
		}
		if taken {
			v2 = ""
		}
	}
	if v2 == "" {
		v2, err = p.allocator.FreshV2(ctx, facts)
		if err != nil {
			return "", "", "", err
		}
	}
	return v3, v2, facts.AopPid, nil
}

// save upserts the record, reallocating only the colliding identifier on
// a concurrent uniqueness conflict, a bounded number of times.
func (p *Pipeline) save(ctx context.Context, facts *models.DocumentFacts, res *Result) error {
	for attempt := 0; ; attempt++ {
		rec := models.RecordFromFacts(facts, res.V3, res.V2, res.AopPid)
		err := p.store.Upsert(ctx, rec)
		if err == nil {
			return nil
		}
		var conflict *domain.NotUniqueError
		if !errors.As(err, &conflict) || attempt >= maxUpsertRetries {
			return fmt.Errorf("%w: %v", domain.ErrSavingError, err)
		}

		p.logger.Warn("identifier conflict on save, reallocating",
			"field", conflict.Field, "attempt", attempt+1)
		switch conflict.Field {
		case "v2":
			v2, err := p.allocator.FreshV2(ctx, facts)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrSavingError, err)
			}
			res.V2 = v2
		default:
			v3, err := p.allocator.FreshV3(ctx)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrSavingError, err)
			}
			res.V3 = v3
		}
		res.Changed = true
		rewritten, rerr := xmlsps.RewriteIDs(facts.XML, res.V3, res.V2, res.AopPid)
		if rerr != nil {
			return fmt.Errorf("%w: %v", domain.ErrSavingError, rerr)
		}
		res.XML = rewritten
		facts.XML = rewritten
	}
}

// GetDocument returns the registered record for a v3.
func (p *Pipeline) GetDocument(ctx context.Context, v3 string) (*models.DocumentRecord, error) {
	return p.store.FetchMostRecent(ctx, v3)
}

func (p *Pipeline) logRequest(ctx context.Context, user string, facts *models.DocumentFacts) *models.Request {
	if p.requests == nil {
		return nil
	}
	req := &models.Request{
		ID:       uuid.NewString(),
		User:     user,
		InV2:     facts.V2,
		InV3:     facts.V3,
		InAopPid: facts.AopPid,
		Status:   models.RequestStatusPending,
	}
	if err := p.requests.LogRequest(ctx, req); err != nil {
		p.logger.Warn("request audit write failed", "error", err)
		return nil
	}
	return req
}

func (p *Pipeline) updateRequest(ctx context.Context, req *models.Request, facts *models.DocumentFacts, res *Result, callErr error) {
	if req == nil {
		return
	}
	if callErr != nil {
		req.Status = models.RequestStatusFailed
		req.Diffs = callErr.Error()
	} else {
		req.Status = models.RequestStatusCompleted
		req.OutV2 = res.V2
		req.OutV3 = res.V3
		req.OutAopPid = res.AopPid
		req.Diffs = describeDiffs(req)
	}
	if err := p.requests.UpdateRequest(ctx, req); err != nil {
		p.logger.Warn("request audit update failed", "error", err)
	}
}

func describeDiffs(req *models.Request) string {
	var diffs []string
	if req.InV2 != req.OutV2 {
		diffs = append(diffs, fmt.Sprintf("v2: %q -> %q", req.InV2, req.OutV2))
	}
	if req.InV3 != req.OutV3 {
		diffs = append(diffs, fmt.Sprintf("v3: %q -> %q", req.InV3, req.OutV3))
	}
	if req.InAopPid != req.OutAopPid {
		diffs = append(diffs, fmt.Sprintf("aop_pid: %q -> %q", req.InAopPid, req.OutAopPid))
	}
	return strings.Join(diffs, "; ")
}
