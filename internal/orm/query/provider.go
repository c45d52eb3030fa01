package query

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// Row is one result row keyed by property name. storage.TypeColumn names the
// concrete entity type.
type Row = storage.Row

// Provider executes query expressions
type Provider interface {
	ExecuteScalar(ctx context.Context, expr *Expression) (interface{}, error)
	ExecuteSequence(ctx context.Context, expr *Expression) (iter.Seq2[Row, error], error)
}

// Source supplies the rows of an entity type hierarchy
type Source interface {
	Rows(ctx context.Context, et *schema.EntityType) ([]storage.Row, error)
}

// MemoryProvider evaluates expressions by scanning the rows of a Source
type MemoryProvider struct {
	source Source
	logger *zap.Logger
}

var _ Provider = (*MemoryProvider)(nil)

// Option configures a MemoryProvider
type Option func(*MemoryProvider)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *MemoryProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewMemoryProvider creates a provider over source
func NewMemoryProvider(source Source, opts ...Option) *MemoryProvider {
	p := &MemoryProvider{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExecuteSequence returns the matching rows in order. Rows are read when the
// sequence is iterated; iteration stops at the first error.
func (p *MemoryProvider) ExecuteSequence(ctx context.Context, expr *Expression) (iter.Seq2[Row, error], error) {
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	if expr.Aggregate != AggregateNone {
		return nil, fmt.Errorf("%w: %s", ErrNotSequence, expr.Aggregate)
	}
	optimized, _ := Optimize(expr)

	return func(yield func(Row, error) bool) {
		rows, err := p.matching(ctx, optimized)
		if err != nil {
			yield(nil, err)
			return
		}
		p.logger.Debug("query executed",
			zap.Stringer("expression", optimized), zap.Int("rows", len(rows)))
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}, nil
}

// ExecuteScalar computes the aggregate of expr. SUM and AVG return float64;
// MIN and MAX return the stored value, or nil when no row matches.
func (p *MemoryProvider) ExecuteScalar(ctx context.Context, expr *Expression) (interface{}, error) {
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	if expr.Aggregate == AggregateNone {
		return nil, ErrNotScalar
	}
	optimized, _ := Optimize(expr)
	rows, err := p.matching(ctx, optimized)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("scalar query executed",
		zap.Stringer("expression", optimized), zap.Int("rows", len(rows)))

	switch expr.Aggregate {
	case AggregateCount:
		return len(rows), nil
	case AggregateExists:
		return len(rows) > 0, nil
	case AggregateSum, AggregateAvg:
		sum, n := 0.0, 0
		for _, row := range rows {
			v := row[expr.Field]
			if v == nil {
				continue
			}
			f, ok := toFloat64(v)
			if !ok {
				return nil, fmt.Errorf("%s(%s): %w: %T", expr.Aggregate, expr.Field, ErrIncomparable, v)
			}
			sum += f
			n++
		}
		if expr.Aggregate == AggregateSum {
			return sum, nil
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil
	default:
		var best interface{}
		for _, row := range rows {
			v := row[expr.Field]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, err := compareValues(v, best)
			if err != nil {
				return nil, fmt.Errorf("%s(%s): %w", expr.Aggregate, expr.Field, err)
			}
			if (expr.Aggregate == AggregateMin && cmp < 0) || (expr.Aggregate == AggregateMax && cmp > 0) {
				best = v
			}
		}
		return best, nil
	}
}

// matching filters, sorts and pages the rows of expr
func (p *MemoryProvider) matching(ctx context.Context, expr *Expression) ([]Row, error) {
	rows, err := p.source.Rows(ctx, expr.EntityType)
	if err != nil {
		return nil, err
	}

	matched := make([]Row, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := expr.Where.Matches(row, expr.EntityType)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if len(expr.OrderBy) > 0 {
		var sortErr error
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range expr.OrderBy {
				cmp, err := compareValues(matched[i][o.Field], matched[j][o.Field])
				if err != nil {
					if sortErr == nil {
						sortErr = fmt.Errorf("ordering by %s: %w", o.Field, err)
					}
					return false
				}
				if cmp != 0 {
					return (cmp < 0) != o.Descending
				}
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}

	if expr.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[expr.Offset:]
	if expr.Limit > 0 && expr.Limit < len(matched) {
		matched = matched[:expr.Limit]
	}
	return matched, nil
}
