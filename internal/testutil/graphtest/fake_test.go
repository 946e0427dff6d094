package graphtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/dbexec"
)

func TestFakeTx_StaysFailedAfterStatementError(t *testing.T) {
	ctx := context.Background()
	pool := NewFakePool().
		On("BROKEN", FailTimes(1, dbexec.Transient(errors.New("connection reset")))).
		OnRecords("RETURN 1", Value("x", int64(1)))

	tx, err := pool.BeginRead(ctx)
	require.NoError(t, err)
	_, err = tx.Run(ctx, "MATCH (n) BROKEN", nil)
	require.Error(t, err)

	_, err = tx.Run(ctx, "MATCH (n) BROKEN", nil)
	assert.ErrorIs(t, err, ErrTxFailed)
	assert.False(t, dbexec.IsTransient(err))
	_, err = tx.Run(ctx, "RETURN 1", nil)
	assert.ErrorIs(t, err, ErrTxFailed)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxFailed)
	assert.Len(t, pool.Calls(), 1, "a failed transaction sends nothing further")

	require.NoError(t, tx.Rollback(ctx))
	fresh, err := pool.BeginRead(ctx)
	require.NoError(t, err)
	records, err := fresh.Run(ctx, "RETURN 1", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
