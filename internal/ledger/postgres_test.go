package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
)

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *[]byte:
			*v = row[i].([]byte)
		}
	}
	return nil
}

type fakeDB struct {
	rows    *fakeRows
	execSQL []string
	execTag pgconn.CommandTag
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f.rows, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return f.execTag, nil
}

func delegationRow(t *testing.T, delegator string, notAfter time.Time) []any {
	t.Helper()
	caveats, err := delegation.MarshalCaveats([]delegation.Caveat{
		delegation.TimeWindowCaveat{NotAfter: notAfter},
	})
	require.NoError(t, err)
	return []any{
		delegator,
		"0x6666666666666666666666666666666666666666",
		"0x7777777777777777777777777777777777777777",
		"1",
		[]byte{0x01, 0x02},
		caveats,
		constants.DelegationActive,
	}
}

// The cap must count only delegations that survive the expiry filter:
// expired rows early in delegator order must not crowd out active ones.
func TestListActiveDelegationsCapCountsOnlyActive(t *testing.T) {
	now := time.Now()
	db := &fakeDB{rows: &fakeRows{rows: [][]any{
		delegationRow(t, "0x1000000000000000000000000000000000000001", now.Add(-time.Hour)),
		delegationRow(t, "0x2000000000000000000000000000000000000002", now.Add(time.Hour)),
		delegationRow(t, "0x3000000000000000000000000000000000000003", now.Add(time.Hour)),
	}}}
	l := NewPostgresLedger(db)

	out, err := l.ListActiveDelegations(context.Background(), now, 2)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, common.HexToAddress("0x2000000000000000000000000000000000000002"), out[0].Delegator)
	assert.Equal(t, common.HexToAddress("0x3000000000000000000000000000000000000003"), out[1].Delegator)
}

func TestListActiveDelegationsStopsAtCap(t *testing.T) {
	now := time.Now()
	db := &fakeDB{rows: &fakeRows{rows: [][]any{
		delegationRow(t, "0x1000000000000000000000000000000000000001", now.Add(time.Hour)),
		delegationRow(t, "0x2000000000000000000000000000000000000002", now.Add(time.Hour)),
		delegationRow(t, "0x3000000000000000000000000000000000000003", now.Add(time.Hour)),
	}}}
	l := NewPostgresLedger(db)

	out, err := l.ListActiveDelegations(context.Background(), now, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, common.HexToAddress("0x1000000000000000000000000000000000000001"), out[0].Delegator)
}

// Re-parking a fee for a (wallet, cycle date) whose earlier row was already
// reconciled must reopen the row, or the new failure never gets retried.
func TestRecordFeeReconciliationReopensCollectedRow(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	l := NewPostgresLedger(db)

	err := l.RecordFeeReconciliation(context.Background(), FeeReconciliation{
		Wallet:    common.HexToAddress("0x5555555555555555555555555555555555555555"),
		CycleDate: "2026-08-26",
		Token:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:    "100000",
		Step:      "fee_transfer",
	})
	require.NoError(t, err)

	require.Len(t, db.execSQL, 1)
	_, conflict, found := strings.Cut(db.execSQL[0], "DO UPDATE SET")
	require.True(t, found)
	assert.Contains(t, conflict, "collected = false")
}

func TestMarkFeeReconciledMissingRow(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")}
	l := NewPostgresLedger(db)

	err := l.MarkFeeReconciled(context.Background(),
		common.HexToAddress("0x5555555555555555555555555555555555555555"), "2026-08-26")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}
