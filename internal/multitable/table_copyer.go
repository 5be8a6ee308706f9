package multitable

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"catalog/internal/metrics"
	"catalog/internal/storage"
)

// TableCopyer appends batches to one destination session and remembers how
// many rows each table should hold afterwards.
type TableCopyer struct {
	tx      storage.Tx
	log     *zap.Logger
	metrics metrics.Backend

	order    []string
	expected map[string]int64
}

func NewTableCopyer(tx storage.Tx, log *zap.Logger, m metrics.Backend) *TableCopyer {
	if log == nil {
		log = zap.NewNop()
	}
	return &TableCopyer{
		tx:       tx,
		log:      log,
		metrics:  m,
		expected: map[string]int64{},
	}
}

// Copy appends b. An empty batch still registers the table for the audit.
func (c *TableCopyer) Copy(ctx context.Context, b storage.Batch) error {
	if b.Table == "" {
		return fmt.Errorf("copy: table is empty")
	}
	if len(b.Columns) == 0 {
		return fmt.Errorf("copy: columns empty for table %s", b.Table)
	}

	if _, seen := c.expected[b.Table]; !seen {
		c.order = append(c.order, b.Table)
	}
	c.expected[b.Table] += int64(len(b.Rows))

	if len(b.Rows) == 0 {
		c.log.Debug("copy skipped", zap.String("table", b.Table), zap.Int("rows", 0))
		return nil
	}

	n, err := c.tx.InsertRows(ctx, b.Table, b.Columns, b.Rows)
	if err != nil {
		return fmt.Errorf("copy %s: %w", b.Table, err)
	}
	metrics.RecordRows(c.metrics, b.Table, n)
	c.log.Debug("copied", zap.String("table", b.Table), zap.Int64("rows", n))
	return nil
}

// Expected returns a copy of the per-table row counts written so far.
func (c *TableCopyer) Expected() map[string]int64 {
	out := make(map[string]int64, len(c.expected))
	for k, v := range c.expected {
		out[k] = v
	}
	return out
}

// Audit re-counts every copied table inside the session, in copy order.
func (c *TableCopyer) Audit(ctx context.Context) ([]RowCountMismatch, error) {
	var out []RowCountMismatch
	for _, table := range c.order {
		got, err := c.tx.CountRows(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		if want := c.expected[table]; got != want {
			out = append(out, RowCountMismatch{Table: table, Expected: want, Actual: got})
		}
	}
	return out, nil
}
