package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/ribon-matchalatte/backend/app"
	"github.com/ribon-matchalatte/backend/srvreg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain commits every broadcast transaction in its own block
type chain struct {
	mu     sync.Mutex
	app    *app.Application
	height int64
	block  chan struct{} // when set, broadcasts wait on it
}

func newChain(t *testing.T) *chain {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &chain{app: app.NewABCIApplication(db, nil)}
}

func (c *chain) BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	check, err := c.app.CheckTx(ctx, &abcitypes.CheckTxRequest{Tx: tx})
	if err != nil {
		return nil, err
	}
	result := &cmtrpctypes.ResultBroadcastTxCommit{CheckTx: *check, Hash: tx.Hash()}
	if check.Code != app.CodeOK {
		return result, nil
	}
	c.height++
	block, err := c.app.FinalizeBlock(ctx, &abcitypes.FinalizeBlockRequest{Height: c.height, Txs: [][]byte{tx}})
	if err != nil {
		return nil, err
	}
	if _, err := c.app.Commit(ctx, &abcitypes.CommitRequest{}); err != nil {
		return nil, err
	}
	result.TxResult = *block.TxResults[0]
	result.Height = c.height
	return result, nil
}

func (c *chain) ABCIQuery(ctx context.Context, _ string, data cmtbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error) {
	res, err := c.app.Query(ctx, &abcitypes.QueryRequest{Data: data})
	if err != nil {
		return nil, err
	}
	return &cmtrpctypes.ResultABCIQuery{Response: *res}, nil
}

func (c *chain) ABCIInfo(ctx context.Context) (*cmtrpctypes.ResultABCIInfo, error) {
	res, err := c.app.Info(ctx, &abcitypes.InfoRequest{})
	if err != nil {
		return nil, err
	}
	return &cmtrpctypes.ResultABCIInfo{Response: *res}, nil
}

func completion(requestID, orderID string) *srvreg.Transaction {
	return &srvreg.Transaction{
		Request: srvreg.Request{
			Method:    "PUT",
			Path:      "/api/admin/orders/" + orderID + "/status",
			Body:      `{"status":"Completed"}`,
			RequestID: requestID,
		},
		Response: srvreg.Response{StatusCode: 200, Body: `{"id":"` + orderID + `"}`},
		Subject:  "order:" + orderID,
	}
}

func TestCometRecordAndEntries(t *testing.T) {
	ctx := context.Background()
	l := NewComet(newChain(t), "node-0", time.Second, nil)

	receipt, err := l.Record(ctx, completion("r1", "o-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.BlockHeight)
	assert.Equal(t, app.GenerateTxID("r1", "node-0"), receipt.TxID)
	assert.NotEmpty(t, receipt.TxHash)

	_, err = l.Record(ctx, completion("r2", "o-2"))
	require.NoError(t, err)
	_, err = l.Record(ctx, completion("r3", "o-1"))
	require.NoError(t, err)

	entries, err := l.Entries(ctx, "order:o-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0].Request.RequestID)
	assert.Equal(t, "node-0", entries[0].OriginNodeID)
	assert.Equal(t, int64(3), entries[1].BlockHeight)

	info, err := l.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, int64(3), info.LastBlockHeight)
}

func TestCometRejectsMalformed(t *testing.T) {
	l := NewComet(newChain(t), "node-0", time.Second, nil)
	tx := completion("r1", "o-1")
	tx.Subject = ""
	_, err := l.Record(context.Background(), tx)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestCometTimeout(t *testing.T) {
	c := newChain(t)
	c.block = make(chan struct{})
	l := NewComet(c, "node-0", 20*time.Millisecond, nil)

	_, err := l.Record(context.Background(), completion("r1", "o-1"))
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestNop(t *testing.T) {
	var l Ledger = Nop{}
	receipt, err := l.Record(context.Background(), completion("r1", "o-1"))
	require.NoError(t, err)
	assert.Nil(t, receipt)
	_, err = l.Entries(context.Background(), "order:o-1")
	assert.ErrorIs(t, err, ErrDisabled)
}
