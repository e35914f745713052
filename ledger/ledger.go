// Package ledger appends stock-affecting requests to the CometBFT audit chain and
// reads them back by subject.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ribon-matchalatte/backend/app"
	"github.com/ribon-matchalatte/backend/srvreg"
)

var (
	// ErrDisabled is returned by reads when no chain is running
	ErrDisabled = errors.New("audit ledger is disabled")
	// ErrTimeout means the transaction was not committed before the deadline
	ErrTimeout = errors.New("ledger commit timed out")
	// ErrRejected means the chain refused the transaction
	ErrRejected = errors.New("ledger rejected transaction")
)

// Receipt identifies a committed ledger transaction
type Receipt struct {
	TxID        string `json:"tx_id"`
	TxHash      string `json:"tx_hash"`
	BlockHeight int64  `json:"block_height"`
}

// Info describes the ledger for the debug endpoint
type Info struct {
	Enabled          bool   `json:"enabled"`
	NodeID           string `json:"node_id,omitempty"`
	LastBlockHeight  int64  `json:"last_block_height"`
	LastBlockAppHash string `json:"last_block_app_hash,omitempty"`
}

type Ledger interface {
	// Record appends tx and blocks until it is committed
	Record(ctx context.Context, tx *srvreg.Transaction) (*Receipt, error)
	// Entries returns every transaction recorded for subject, oldest first
	Entries(ctx context.Context, subject string) ([]srvreg.Transaction, error)
	Info(ctx context.Context) (*Info, error)
}

// Client is the part of the CometBFT RPC client the ledger needs; the in-process
// *local.Local satisfies it.
type Client interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error)
	ABCIInfo(ctx context.Context) (*cmtrpctypes.ResultABCIInfo, error)
}

// Comet records transactions through a CometBFT node
type Comet struct {
	client  Client
	nodeID  string
	timeout time.Duration
	logger  cmtlog.Logger
}

func NewComet(client Client, nodeID string, timeout time.Duration, logger cmtlog.Logger) *Comet {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Comet{
		client:  client,
		nodeID:  nodeID,
		timeout: timeout,
		logger:  logger.With("module", "ledger"),
	}
}

func (c *Comet) Record(ctx context.Context, tx *srvreg.Transaction) (*Receipt, error) {
	tx.OriginNodeID = c.nodeID
	payload, err := tx.SerializeToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing ledger transaction: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		result *cmtrpctypes.ResultBroadcastTxCommit
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := c.client.BroadcastTxCommit(ctx, cmttypes.Tx(payload))
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case out := <-done:
		if out.err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, out.err)
			}
			return nil, fmt.Errorf("broadcasting ledger transaction: %w", out.err)
		}
		if out.result.CheckTx.Code != app.CodeOK {
			return nil, fmt.Errorf("%w: CheckTx code %d: %s", ErrRejected, out.result.CheckTx.Code, out.result.CheckTx.Log)
		}
		if out.result.TxResult.Code != app.CodeOK {
			return nil, fmt.Errorf("%w: FinalizeBlock code %d: %s", ErrRejected, out.result.TxResult.Code, out.result.TxResult.Log)
		}
		receipt := &Receipt{
			TxID:        string(out.result.TxResult.Data),
			TxHash:      hex.EncodeToString(out.result.Hash),
			BlockHeight: out.result.Height,
		}
		tx.BlockHeight = receipt.BlockHeight
		c.logger.Info("Ledger transaction committed", "subject", tx.Subject, "tx_id", receipt.TxID, "height", receipt.BlockHeight)
		return receipt, nil
	}
}

func (c *Comet) Entries(ctx context.Context, subject string) ([]srvreg.Transaction, error) {
	res, err := c.client.ABCIQuery(ctx, "", cmtbytes.HexBytes(app.SubjectPrefix+subject))
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	if res.Response.Code != app.CodeOK {
		return nil, fmt.Errorf("querying ledger: code %d: %s", res.Response.Code, res.Response.Log)
	}
	var txs []srvreg.Transaction
	if err := json.Unmarshal(res.Response.Value, &txs); err != nil {
		return nil, fmt.Errorf("decoding ledger entries: %w", err)
	}
	return txs, nil
}

func (c *Comet) Info(ctx context.Context) (*Info, error) {
	res, err := c.client.ABCIInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying ledger info: %w", err)
	}
	return &Info{
		Enabled:          true,
		NodeID:           c.nodeID,
		LastBlockHeight:  res.Response.LastBlockHeight,
		LastBlockAppHash: fmt.Sprintf("%X", res.Response.LastBlockAppHash),
	}, nil
}

// Nop is used when the ledger is disabled. Record succeeds without a receipt.
type Nop struct{}

func (Nop) Record(context.Context, *srvreg.Transaction) (*Receipt, error) { return nil, nil }

func (Nop) Entries(context.Context, string) ([]srvreg.Transaction, error) { return nil, ErrDisabled }

func (Nop) Info(context.Context) (*Info, error) { return &Info{}, nil }
