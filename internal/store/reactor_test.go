package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyWriteExtractsVerbAndTable(t *testing.T) {
	cases := []struct {
		sql       string
		wantTable string
		wantIns   bool
		wantOK    bool
	}{
		{"INSERT INTO state (key, value) VALUES (?, ?)", "state", true, true},
		{"insert into State (key) values (?)", "state", true, true},
		{"UPDATE human_interactions SET status = ? WHERE id = ?", "human_interactions", false, true},
		{"DELETE FROM state WHERE key = ?", "state", false, true},
		{"REPLACE INTO agents (id) VALUES (?)", "agents", true, true},
		{"INSERT OR IGNORE INTO tasks (id) VALUES (?)", "tasks", true, true},
		{"SELECT * FROM state", "", false, false},
		{"", "", false, false},
	}
	for _, c := range cases {
		table, isInsert, ok := classifyWrite(c.sql)
		require.Equal(t, c.wantOK, ok, "sql=%q", c.sql)
		if !c.wantOK {
			continue
		}
		require.Equal(t, c.wantTable, table, "sql=%q", c.sql)
		require.Equal(t, c.wantIns, isInsert, "sql=%q", c.sql)
	}
}

func TestReactorSubscribeFiresOnMatchingTable(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	unsub := r.Subscribe([]string{"state"}, func() { fired++ })
	defer unsub()

	r.Invalidate("state")
	require.Equal(t, 1, fired)

	r.Invalidate("agents")
	require.Equal(t, 1, fired, "unrelated table must not fire the subscription")
}

func TestReactorSubscribeIsCaseInsensitiveOnTableName(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	r.Subscribe([]string{"STATE"}, func() { fired++ })

	r.Invalidate("state")
	require.Equal(t, 1, fired)
}

func TestReactorUnsubscribeStopsNotifications(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	unsub := r.Subscribe([]string{"state"}, func() { fired++ })

	unsub()
	r.Invalidate("state")
	require.Equal(t, 0, fired)
}

func TestReactorRowFilterMatchesOnlyBoundValues(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	r.SubscribeWithRowFilter("human_interactions", "id", []string{"abc"}, func() { fired++ })

	r.InvalidateRows("human_interactions", "id", []string{"xyz"})
	require.Equal(t, 0, fired, "non-matching row value must not fire")

	r.InvalidateRows("human_interactions", "id", []string{"abc"})
	require.Equal(t, 1, fired, "matching row value must fire")
}

func TestReactorRowFilterIgnoresOtherTablesAndColumns(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	r.SubscribeWithRowFilter("human_interactions", "id", []string{"abc"}, func() { fired++ })

	r.InvalidateRows("state", "id", []string{"abc"})
	require.Equal(t, 0, fired, "different table must not fire")

	r.InvalidateRows("human_interactions", "execution_id", []string{"abc"})
	require.Equal(t, 0, fired, "different column on the same table must not fire")
}

func TestReactorNotifyTreatsInsertAsTableWideInvalidation(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	r.SubscribeWithRowFilter("human_interactions", "id", []string{"abc"}, func() { fired++ })

	// An INSERT write carries no prior row to filter by, so notify() routes
	// it through Invalidate (table-wide), not InvalidateRows.
	r.notify([]writeStatement{{table: "human_interactions", isInsert: true}})
	require.Equal(t, 1, fired)
}

func TestReactorNotifyRoutesUpdateThroughRowFilter(t *testing.T) {
	r := NewReactor(nil)
	fired := 0
	r.SubscribeWithRowFilter("human_interactions", "id", []string{"abc"}, func() { fired++ })

	r.notify([]writeStatement{{table: "human_interactions", column: "id", value: "other", isInsert: false}})
	require.Equal(t, 0, fired, "UPDATE for a different id must not fire a row-filtered subscriber")

	r.notify([]writeStatement{{table: "human_interactions", column: "id", value: "abc", isInsert: false}})
	require.Equal(t, 1, fired)
}

func TestRecordWriteNoOpOutsideTransactContext(t *testing.T) {
	// RecordWrite must not panic, and must have no observable effect, when
	// called with a plain context that Reactor.Transact never touched.
	RecordWrite(context.Background(), "INSERT INTO state", "key", "k")
	RecordTableClear(context.Background(), "state")
}

func TestRecordWriteAppendsToContextAccumulator(t *testing.T) {
	rc := &recordedWrites{}
	ctx := context.WithValue(context.Background(), recordedWritesKey{}, rc)

	RecordWrite(ctx, "INSERT INTO state", "key", "k")
	RecordWrite(ctx, "UPDATE human_interactions", "id", "abc")
	RecordTableClear(ctx, "state")

	require.Len(t, rc.writes, 3)
	require.Equal(t, writeStatement{table: "state", column: "key", value: "k", isInsert: true}, rc.writes[0])
	require.Equal(t, writeStatement{table: "human_interactions", column: "id", value: "abc", isInsert: false}, rc.writes[1])
	require.Equal(t, writeStatement{table: "state", isInsert: true}, rc.writes[2])
}

func TestRecordWriteIgnoresUnclassifiableSQL(t *testing.T) {
	rc := &recordedWrites{}
	ctx := context.WithValue(context.Background(), recordedWritesKey{}, rc)

	RecordWrite(ctx, "SELECT 1", "key", "k")
	require.Empty(t, rc.writes, "a SELECT is not a write and must not be recorded")
}
