package merge

// pagination trims an already merged cursor. skipOffset controls whether the
// first Offset rows are discarded here or were already removed upstream.
type pagination struct {
	cursor
	inner      MergedResult
	offset     int64
	rowCount   *int64
	skipOffset bool
	skipped    bool
	emitted    int64
}

func (p *pagination) Next() (bool, error) {
	if p.state == exhausted {
		return false, nil
	}
	if p.skipOffset && !p.skipped {
		p.skipped = true
		for i := int64(0); i < p.offset; i++ {
			ok, err := p.inner.Next()
			if err != nil || !ok {
				return p.advanced(false, err)
			}
		}
	}
	if p.rowCount != nil && p.emitted >= *p.rowCount {
		return p.advanced(false, nil)
	}
	ok, err := p.inner.Next()
	if ok {
		p.emitted++
	}
	return p.advanced(ok, err)
}

func (p *pagination) Value(index int) (any, error) {
	if err := p.checkPositioned(); err != nil {
		return nil, err
	}
	v, err := p.inner.Value(index)
	if err != nil {
		return nil, err
	}
	return p.read(v)
}

// LimitDecoratorMergedResult applies LIMIT/OFFSET: skip Offset rows, then
// return at most RowCount.
type LimitDecoratorMergedResult struct {
	pagination
}

func NewLimitDecoratorMergedResult(inner MergedResult, p *PaginationContext) *LimitDecoratorMergedResult {
	return &LimitDecoratorMergedResult{pagination{
		inner:      inner,
		offset:     p.Offset,
		rowCount:   p.RowCount,
		skipOffset: true,
	}}
}

// RowNumberDecoratorMergedResult applies a ROWNUM upper bound. The lower
// bound is enforced by the per-shard row-number predicate.
type RowNumberDecoratorMergedResult struct {
	pagination
}

func NewRowNumberDecoratorMergedResult(inner MergedResult, p *PaginationContext) *RowNumberDecoratorMergedResult {
	return &RowNumberDecoratorMergedResult{pagination{
		inner:    inner,
		rowCount: p.RowCount,
	}}
}

// TopAndRowNumberDecoratorMergedResult applies TOP with a ROW_NUMBER lower
// bound: skip Offset rows, then return at most RowCount.
type TopAndRowNumberDecoratorMergedResult struct {
	pagination
}

func NewTopAndRowNumberDecoratorMergedResult(inner MergedResult, p *PaginationContext) *TopAndRowNumberDecoratorMergedResult {
	return &TopAndRowNumberDecoratorMergedResult{pagination{
		inner:      inner,
		offset:     p.Offset,
		rowCount:   p.RowCount,
		skipOffset: true,
	}}
}

// decorate wraps merged in the decorator for p's dialect. It returns merged
// unchanged when there is nothing to trim.
func decorate(merged MergedResult, p *PaginationContext) MergedResult {
	if !p.Bounded() {
		return merged
	}
	switch p.Dialect {
	case DialectOracle:
		if p.RowCount == nil {
			return merged
		}
		return NewRowNumberDecoratorMergedResult(merged, p)
	case DialectSQLServer:
		return NewTopAndRowNumberDecoratorMergedResult(merged, p)
	}
	return NewLimitDecoratorMergedResult(merged, p)
}
