package multitable

import (
	"context"
	"fmt"
	"sync"

	"catalog/internal/metrics"
	"catalog/internal/storage"
)

type memTable struct {
	serial bool
	rows   []map[string]any
}

func (t *memTable) clone() *memTable {
	out := &memTable{serial: t.serial, rows: make([]map[string]any, len(t.rows))}
	for i, r := range t.rows {
		m := make(map[string]any, len(r))
		for k, v := range r {
			m[k] = v
		}
		out.rows[i] = m
	}
	return out
}

// fakeRepo is an in-memory Repository. Tx writes go to a working copy that
// replaces the committed tables on Commit.
type fakeRepo struct {
	mu     sync.Mutex
	tables map[string]*memTable

	ensureCalls int
	dropped     []string
	commits     int
	rollbacks   int
	closed      int

	// shortWrite silently drops the last row of inserts into a table.
	shortWrite map[string]bool
	insertErr  map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tables: map[string]*memTable{}, shortWrite: map[string]bool{}, insertErr: map[string]error{}}
}

func (r *fakeRepo) Close() { r.closed++ }

func (r *fakeRepo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCalls++
	for _, t := range tables {
		if _, ok := r.tables[t.Name]; !ok {
			r.tables[t.Name] = &memTable{serial: t.PrimaryKey != nil}
		}
	}
	return nil
}

func (r *fakeRepo) DropTables(ctx context.Context, tables []storage.TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tables {
		r.dropped = append(r.dropped, t.Name)
		delete(r.tables, t.Name)
	}
	return nil
}

func (r *fakeRepo) Begin(ctx context.Context) (storage.Tx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := make(map[string]*memTable, len(r.tables))
	for k, t := range r.tables {
		work[k] = t.clone()
	}
	return &fakeTx{repo: r, work: work}, nil
}

// seed appends committed rows directly.
func (r *fakeRepo) seed(table string, row map[string]any) {
	t := r.tables[table]
	if t.serial {
		row["id"] = int64(len(t.rows) + 1)
	}
	t.rows = append(t.rows, row)
}

// pairs returns cols of every committed row of table, in insertion order.
func (r *fakeRepo) pairs(table string, cols ...string) [][]any {
	var out [][]any
	for _, row := range r.tables[table].rows {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = row[c]
		}
		out = append(out, vals)
	}
	return out
}

func (r *fakeRepo) count(table string) int {
	t, ok := r.tables[table]
	if !ok {
		return 0
	}
	return len(t.rows)
}

type fakeTx struct {
	repo *fakeRepo
	work map[string]*memTable
	done bool
}

func (tx *fakeTx) table(name string) (*memTable, error) {
	t, ok := tx.work[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return t, nil
}

func (tx *fakeTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if err := tx.repo.insertErr[table]; err != nil {
		return 0, err
	}
	t, err := tx.table(table)
	if err != nil {
		return 0, err
	}
	if tx.repo.shortWrite[table] && len(rows) > 0 {
		rows = rows[:len(rows)-1]
	}
	for _, vals := range rows {
		m := make(map[string]any, len(columns)+1)
		for i, c := range columns {
			m[c] = vals[i]
		}
		if t.serial {
			m["id"] = int64(len(t.rows) + 1)
		}
		t.rows = append(t.rows, m)
	}
	return int64(len(rows)), nil
}

func (tx *fakeTx) SelectAllKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	t, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(t.rows))
	for _, row := range t.rows {
		out[storage.NormalizeKey(row[keyColumn])] = row[valueColumn].(int64)
	}
	return out, nil
}

func (tx *fakeTx) SelectAllKeyText(ctx context.Context, table, keyColumn, valueColumn string) (map[string]string, error) {
	t, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(t.rows))
	for _, row := range t.rows {
		out[storage.NormalizeKey(row[keyColumn])] = storage.NormalizeKey(row[valueColumn])
	}
	return out, nil
}

func (tx *fakeTx) CountRows(ctx context.Context, table string) (int64, error) {
	t, err := tx.table(table)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.tables = tx.work
	tx.repo.commits++
	tx.done = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.repo.mu.Lock()
	tx.repo.rollbacks++
	tx.repo.mu.Unlock()
	tx.done = true
	return nil
}

// fakeLookup serves fixed mappings keyed by table.
type fakeLookup struct {
	ids   map[string]map[string]int64
	texts map[string]map[string]string
	err   error
}

func (l *fakeLookup) SelectAllKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.ids[table], nil
}

func (l *fakeLookup) SelectAllKeyText(ctx context.Context, table, keyColumn, valueColumn string) (map[string]string, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.texts[table], nil
}

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
}

func newRecorder() *recorder { return &recorder{counters: map[string]float64{}} }

func (r *recorder) key(name string, l metrics.Labels) string {
	return fmt.Sprintf("%s|%s|%s|%s", name, l["step"], l["status"], l["kind"])
}

func (r *recorder) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[r.key(name, l)] += delta
}

func (r *recorder) ObserveHistogram(string, float64, metrics.Labels) {}

func (r *recorder) get(name, step, status, kind string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[fmt.Sprintf("%s|%s|%s|%s", name, step, status, kind)]
}
