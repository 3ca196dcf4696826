package service

import (
	"context"
	"time"

	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// dbSystem maps a dialect to its OTel db.system value.
func dbSystem(d domain.Dialect) string {
	if d == domain.DialectPostgres {
		return "postgresql"
	}
	return string(d)
}

// QueryService runs every statement through the gate before the backend sees
// it: validate, bound the row count, execute, audit, mask. The validator and
// the backend must be built for the same dialect.
type QueryService struct {
	validator *domain.Validator
	backend   port.Backend
	auditor   port.QueryAuditor
	logger    zerolog.Logger
	masks     map[string]domain.MaskType // column-name → mask-type (nil = no masking)
	maxRows   int
	timeout   time.Duration
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewQueryService(validator *domain.Validator, backend port.Backend, auditor port.QueryAuditor, logger zerolog.Logger, masks map[string]domain.MaskType, maxRows int, timeout time.Duration, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validator: validator,
		backend:   backend,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		maxRows:   maxRows,
		timeout:   timeout,
		tracer:    tracer,
		inst:      inst,
	}
}

// ExecuteQuery validates the statement and, if allowed, runs the row-bounded
// rewrite on the backend. The returned result carries the validation warnings
// and has the mask table applied to its rows.
func (s *QueryService) ExecuteQuery(ctx context.Context, sql string) (*port.QueryResult, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.ExecuteQuery",
		trace.WithAttributes(
			attribute.String("db.system", dbSystem(s.backend.Dialect())),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	verdict := s.validator.Validate(sql)
	if !verdict.IsValid {
		return nil, s.reject(ctx, span, "query", sql, verdict)
	}

	bounded := domain.EnforceRowBound(s.backend.Dialect(), sql, s.maxRows)
	if bounded.LimitApplied {
		span.SetAttributes(attribute.Bool("db.query.rewritten", true))
	}

	execCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.backend.ExecuteQuery(execCtx, bounded.RewrittenQuery, s.maxRows)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	rows, truncated := 0, false
	if result != nil {
		rows, truncated = result.RowCount, result.Truncated
	}
	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         toolNameFromCtx(ctx),
		SQL:          sql,
		Dialect:      string(s.backend.Dialect()),
		RowsReturned: rows,
		Truncated:    truncated,
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}

	result.ExecutionTimeMs = durationMS
	result.Warnings = verdict.Warnings
	if result.Truncated {
		s.inst.IncrementQueryTruncations(ctx)
	}
	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(
		attribute.Int("db.response.rows", result.RowCount),
		attribute.Bool("db.response.truncated", result.Truncated),
	)

	if len(s.masks) > 0 {
		masks := domain.ExpandMasksWithAliases(s.masks, domain.ExtractAliasMap(sql))
		domain.MaskRows(result.Rows, masks)
	}

	return result, nil
}

// ExplainQuery validates the statement and returns the engine's plan for it.
// No row bound is applied: plans are small and the statement is not executed.
func (s *QueryService) ExplainQuery(ctx context.Context, sql string) (*port.QueryResult, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.ExplainQuery",
		trace.WithAttributes(
			attribute.String("db.system", dbSystem(s.backend.Dialect())),
			attribute.String("db.operation.name", "explain"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	verdict := s.validator.Validate(sql)
	if !verdict.IsValid {
		return nil, s.reject(ctx, span, "explain", sql, verdict)
	}

	execCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.backend.GetQueryPlan(execCtx, sql)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	rows := 0
	if result != nil {
		rows = result.RowCount
	}
	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         toolNameFromCtx(ctx),
		SQL:          sql,
		Dialect:      string(s.backend.Dialect()),
		RowsReturned: rows,
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}

	result.ExecutionTimeMs = durationMS
	result.Warnings = verdict.Warnings
	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", result.RowCount))

	return result, nil
}

// Validate runs the gate checks only and reports the verdict. Nothing is sent
// to the backend, so even a rejected statement is safe to submit here.
func (s *QueryService) Validate(sql string) domain.Verdict {
	return s.validator.Validate(sql)
}

func (s *QueryService) reject(ctx context.Context, span trace.Span, op, sql string, verdict domain.Verdict) error {
	err := &domain.Error{Kind: domain.KindValidation, Message: "query rejected", Details: verdict.Errors}
	s.logger.Warn().
		Str("db.operation.name", op).
		Str("db.statement", sql).
		Strs("validation_errors", verdict.Errors).
		Msg("query rejected")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.inst.IncrementQueryRejections(ctx)
	return err
}
