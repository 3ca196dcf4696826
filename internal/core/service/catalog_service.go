package service

import (
	"context"

	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// CatalogService serves schema metadata under the same rules as queries:
// identifiers are sanitized before they reach the backend, operator
// annotations fill in what the engine's own comments leave blank, and sample
// rows pass through the mask table.
type CatalogService struct {
	backend     port.Backend
	logger      zerolog.Logger
	masks       map[string]domain.MaskType
	annotations domain.SchemaAnnotations
	tracer      trace.Tracer
}

func NewCatalogService(backend port.Backend, logger zerolog.Logger, masks map[string]domain.MaskType, annotations domain.SchemaAnnotations, tracer trace.Tracer) *CatalogService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &CatalogService{
		backend:     backend,
		logger:      logger,
		masks:       masks,
		annotations: annotations,
		tracer:      tracer,
	}
}

// DefaultSchema returns the schema a caller lands in when it names none.
func (s *CatalogService) DefaultSchema() string {
	if s.backend.Dialect() == domain.DialectMSSQL {
		return "dbo"
	}
	return "public"
}

// ListDatabases returns the databases visible to the connected role.
func (s *CatalogService) ListDatabases(ctx context.Context) ([]port.DatabaseInfo, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.ListDatabases",
		trace.WithAttributes(attribute.String("db.system", dbSystem(s.backend.Dialect()))),
	)
	defer span.End()

	dbs, err := s.backend.ListDatabases(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return dbs, nil
}

// ListTables returns the visible tables with operator annotations merged in.
func (s *CatalogService) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.ListTables",
		trace.WithAttributes(attribute.String("db.system", dbSystem(s.backend.Dialect()))),
	)
	defer span.End()

	tables, err := s.backend.ListTables(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, t := range tables {
		if a, ok := s.annotations[t.Schema+"."+t.Name]; ok && t.Comment == "" && a.Comment != "" {
			tables[i].Comment = a.Comment
		}
	}
	span.SetAttributes(attribute.Int("db.response.tables", len(tables)))
	return tables, nil
}

// DescribeTable returns column, constraint, and index metadata for one table.
// Both identifiers are sanitized first; a name that fails the whitelist never
// reaches the backend.
func (s *CatalogService) DescribeTable(ctx context.Context, schema, table string) (*port.TableDetail, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.DescribeTable",
		trace.WithAttributes(
			attribute.String("db.system", dbSystem(s.backend.Dialect())),
			attribute.String("db.collection.name", schema+"."+table),
		),
	)
	defer span.End()

	cleanSchema, err := domain.SanitizeIdentifier(schema)
	if err != nil {
		s.logger.Warn().Str("identifier", schema).Err(err).Msg("schema identifier rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	cleanTable, err := domain.SanitizeIdentifier(table)
	if err != nil {
		s.logger.Warn().Str("identifier", table).Err(err).Msg("table identifier rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	detail, err := s.backend.DescribeTable(ctx, cleanSchema, cleanTable)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.annotate(detail)
	domain.MaskRows(detail.SampleRows, s.masks)
	return detail, nil
}

// annotate fills empty comments from the operator annotations. Engine-side
// comments always win.
func (s *CatalogService) annotate(detail *port.TableDetail) {
	if detail == nil {
		return
	}
	a, ok := s.annotations[detail.Schema+"."+detail.Name]
	if !ok {
		return
	}
	if detail.Comment == "" && a.Comment != "" {
		detail.Comment = a.Comment
	}
	for i, col := range detail.Columns {
		if d, ok := a.Columns[col.Name]; ok && col.Comment == "" && d != "" {
			detail.Columns[i].Comment = d
		}
	}
}
