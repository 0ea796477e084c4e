package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type queryStartKey struct{}

type queryStart struct {
	span  trace.Span
	at    time.Time
	op    string
	table string
}

// PGXTracer opens a client span per statement. Statements slower than
// SlowQuery are logged through the request-scoped logger.
type PGXTracer struct {
	SlowQuery time.Duration
}

func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	stmt := strings.TrimSpace(data.SQL)
	op, table := describeStatement(stmt)
	name := "pg " + op
	if table != "" {
		name += " " + table
	}
	ctx, span := otel.Tracer("db.pgx").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncate(stmt, maxStatementLen)),
		attribute.Int("db.args", len(data.Args)),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{span: span, at: time.Now(), op: op, table: table})
}

func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qs, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	defer qs.span.End()
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		qs.span.RecordError(data.Err)
		qs.span.SetStatus(codes.Error, data.Err.Error())
	}
	qs.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))

	if t.SlowQuery <= 0 {
		return
	}
	if elapsed := time.Since(qs.at); elapsed >= t.SlowQuery {
		zerolog.Ctx(ctx).Warn().
			Str("db_operation", qs.op).
			Str("db_table", qs.table).
			Dur("elapsed", elapsed).
			Msg("slow query")
	}
}

// describeStatement extracts the verb and, for simple statements, the table.
func describeStatement(stmt string) (op, table string) {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return "unknown", ""
	}
	op = strings.ToUpper(fields[0])
	var marker string
	switch op {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		return op, strings.Trim(get(fields, 1), `"`)
	default:
		return op, ""
	}
	for i, f := range fields {
		if strings.EqualFold(f, marker) {
			name, _, _ := strings.Cut(get(fields, i+1), "(")
			return op, strings.Trim(name, `",`)
		}
	}
	return op, ""
}

func get(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
