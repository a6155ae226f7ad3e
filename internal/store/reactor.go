package store

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Reactor lets callers observe table writes without polling every row. It
// wraps Transact the same way RunIdempotent wraps Transact: the write runs
// normally, and on successful commit every matching subscription is
// notified synchronously, in registration order.
type Reactor struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	tables    map[string]bool
	rowFilter *rowFilter
	callback  func()
}

type rowFilter struct {
	table  string
	column string
	values map[string]bool
}

// NewReactor wraps an open database connection.
func NewReactor(db *sql.DB) *Reactor {
	return &Reactor{db: db, subs: make(map[int]*subscription)}
}

// Unsubscribe stops a subscription from receiving further notifications.
type Unsubscribe func()

// Subscribe registers a callback fired whenever a committed write touches
// any of the given tables.
func (r *Reactor) Subscribe(tables []string, callback func()) Unsubscribe {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[strings.ToLower(t)] = true
	}
	return r.register(&subscription{tables: set, callback: callback})
}

// SubscribeWithRowFilter registers a callback fired only when a committed
// write touches the given table and, for UPDATE/DELETE statements, the
// write's WHERE clause references column with one of values. INSERT
// statements always invalidate a matching filter — on insert there is no
// prior value to compare against the filter, so any matching-table insert
// is treated as a potential match (decided in DESIGN.md).
func (r *Reactor) SubscribeWithRowFilter(table, column string, values []string, callback func()) Unsubscribe {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return r.register(&subscription{
		tables:    map[string]bool{strings.ToLower(table): true},
		rowFilter: &rowFilter{table: strings.ToLower(table), column: column, values: set},
		callback:  callback,
	})
}

func (r *Reactor) register(s *subscription) Unsubscribe {
	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[id] = s
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Transact runs fn in a transaction, then notifies subscribers for every
// write fn recorded via the *Writes it was given. database/sql has no hook
// to intercept *sql.Tx.Exec calls, so callers report their own writes by
// appending to the slice passed through ctx; entity files that want
// reactive notification call RecordWrite inside fn.
func (r *Reactor) Transact(ctx context.Context, fn func(tx *sql.Tx) error) error {
	rc := &recordedWrites{}
	ctx = context.WithValue(ctx, recordedWritesKey{}, rc)

	if err := TransactContext(ctx, r.db, fn); err != nil {
		return err
	}
	r.notify(rc.writes)
	return nil
}

type recordedWritesKey struct{}

type recordedWrites struct {
	writes []writeStatement
}

type writeStatement struct {
	table    string
	column   string
	value    string
	isInsert bool
}

// RecordWrite notes a write an entity function made inside a Reactor.Transact
// block so that subscribers are notified once the transaction commits. A
// no-op if ctx wasn't produced by Reactor.Transact.
func RecordWrite(ctx context.Context, sqlText, column, value string) {
	rc, ok := ctx.Value(recordedWritesKey{}).(*recordedWrites)
	if !ok {
		return
	}
	table, isInsert, ok := classifyWrite(sqlText)
	if !ok {
		return
	}
	rc.writes = append(rc.writes, writeStatement{table: table, column: column, value: value, isInsert: isInsert})
}

// RecordTableClear notes a bulk write (e.g. DELETE with no WHERE clause)
// that should invalidate every subscriber on table regardless of row
// filters, the same way an INSERT does. A no-op if ctx wasn't produced by
// Reactor.Transact.
func RecordTableClear(ctx context.Context, table string) {
	rc, ok := ctx.Value(recordedWritesKey{}).(*recordedWrites)
	if !ok {
		return
	}
	rc.writes = append(rc.writes, writeStatement{table: strings.ToLower(table), isInsert: true})
}

// Invalidate notifies every subscriber whose table set intersects tables.
// Call this after a Transact block that wrote to those tables but wasn't
// run through Reactor.Transact.
func (r *Reactor) Invalidate(tables ...string) {
	lower := make(map[string]bool, len(tables))
	for _, t := range tables {
		lower[strings.ToLower(t)] = true
	}
	r.notifyMatching(func(s *subscription) bool {
		for t := range lower {
			if s.tables[t] {
				return true
			}
		}
		return false
	})
}

// InvalidateRows notifies subscribers filtered on (table, column) whose
// filter set intersects values, plus any unfiltered subscriber on that table.
func (r *Reactor) InvalidateRows(table, column string, values []string) {
	table = strings.ToLower(table)
	valueSet := make(map[string]bool, len(values))
	for _, v := range values {
		valueSet[v] = true
	}
	r.notifyMatching(func(s *subscription) bool {
		if !s.tables[table] {
			return false
		}
		if s.rowFilter == nil {
			return true
		}
		if s.rowFilter.table != table || s.rowFilter.column != column {
			return false
		}
		for v := range valueSet {
			if s.rowFilter.values[v] {
				return true
			}
		}
		return false
	})
}

func (r *Reactor) notify(writes []writeStatement) {
	for _, w := range writes {
		if w.isInsert {
			r.Invalidate(w.table)
			continue
		}
		r.InvalidateRows(w.table, w.column, []string{w.value})
	}
}

func (r *Reactor) notifyMatching(match func(*subscription) bool) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.subs))
	for id, s := range r.subs {
		if match(s) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	callbacks := make([]func(), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, r.subs[id].callback)
	}
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// classifyWrite extracts the target table and, when present, a single
// column=value equality predicate from an INSERT/UPDATE/DELETE/REPLACE
// statement's SQL text. Used by callers that want to turn a raw SQL string
// plus its bound args into an InvalidateRows call without re-deriving the
// table name by hand.
var writeStatementPattern = regexp.MustCompile(`(?is)^\s*(INSERT(?:\s+OR\s+\w+)?|UPDATE|DELETE|REPLACE)\s+(?:INTO\s+|FROM\s+)?([a-zA-Z_][a-zA-Z0-9_]*)`)

func classifyWrite(sqlText string) (table string, isInsert bool, ok bool) {
	m := writeStatementPattern.FindStringSubmatch(sqlText)
	if m == nil {
		return "", false, false
	}
	verb := strings.ToUpper(strings.Fields(m[1])[0])
	return strings.ToLower(m[2]), verb == "INSERT" || verb == "REPLACE", true
}
