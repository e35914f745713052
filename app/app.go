// Package app is the ABCI application behind the audit ledger. Each transaction is a
// stock-affecting request/response pair; committed transactions are indexed by the
// subject (order or ingredient) they concern.
package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/ribon-matchalatte/backend/srvreg"
)

// Query prefixes
const (
	VerifyPrefix  = "verify:"
	SubjectPrefix = "subject:"
)

// Response codes
const (
	CodeOK uint32 = iota
	CodeInvalidTx
	CodeNotFound
	CodeDatabaseError
)

var (
	keyLastBlockHeight  = []byte("last_block_height")
	keyLastBlockAppHash = []byte("last_block_app_hash")
)

var _ abcitypes.Application = (*Application)(nil)

// Application implements the ABCI interface for the nodes
type Application struct {
	badgerDB     *badger.DB
	onGoingBlock *badger.Txn
	nodeID       string
	mu           sync.Mutex
	logger       cmtlog.Logger
}

func NewABCIApplication(badgerDB *badger.DB, logger cmtlog.Logger) *Application {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Application{
		badgerDB: badgerDB,
		logger:   logger.With("module", "abci"),
	}
}

func (app *Application) SetNodeID(id string) {
	app.nodeID = id
}

func (app *Application) NodeID() string {
	return app.nodeID
}

func (app *Application) Info(_ context.Context, _ *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	var (
		lastBlockHeight  int64
		lastBlockAppHash []byte
	)
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		height, err := get(txn, keyLastBlockHeight)
		if err != nil || height == nil {
			return err
		}
		lastBlockHeight = bytesToInt64(height)
		lastBlockAppHash, err = get(txn, keyLastBlockAppHash)
		return err
	})
	if err != nil {
		app.logger.Error("Error getting last block info", "err", err)
	}

	return &abcitypes.InfoResponse{
		LastBlockHeight:  lastBlockHeight,
		LastBlockAppHash: lastBlockAppHash,
	}, nil
}

// Query serves "verify:<txid>" (the transaction and its status), "subject:<subject>"
// (a JSON array of every transaction recorded for the subject, oldest first) and
// plain key lookups.
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	if len(req.Data) == 0 {
		return &abcitypes.QueryResponse{Code: CodeInvalidTx, Log: "Empty query data"}, nil
	}

	switch {
	case bytes.HasPrefix(req.Data, []byte(VerifyPrefix)):
		return app.verifyTransaction(req.Data[len(VerifyPrefix):]), nil
	case bytes.HasPrefix(req.Data, []byte(SubjectPrefix)):
		return app.subjectTransactions(req.Data[len(SubjectPrefix):]), nil
	}

	resp := abcitypes.QueryResponse{Key: req.Data}
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		val, err := get(txn, req.Data)
		if err != nil {
			return err
		}
		if val == nil {
			resp.Code = CodeNotFound
			resp.Log = "key doesn't exist"
			return nil
		}
		resp.Log = "exists"
		resp.Value = val
		return nil
	})
	if err != nil {
		return databaseError(err), nil
	}
	return &resp, nil
}

func (app *Application) verifyTransaction(txID []byte) *abcitypes.QueryResponse {
	var resp abcitypes.QueryResponse
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		txData, err := get(txn, txKey(txID))
		if err != nil {
			return err
		}
		if txData == nil {
			resp.Code = CodeNotFound
			resp.Log = "Transaction not found"
			return nil
		}
		status, err := get(txn, statusKey(txID))
		if err != nil {
			return err
		}
		if status == nil {
			status = []byte("unknown")
		}
		resp.Value = txData
		resp.Log = string(status)
		return nil
	})
	if err != nil {
		return databaseError(err)
	}
	return &resp
}

func (app *Application) subjectTransactions(subject []byte) *abcitypes.QueryResponse {
	txs := []json.RawMessage{}
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		var ids [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := subjectIndexPrefix(subject)
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ids = append(ids, key[len(prefix)+heightWidth+1:])
		}
		it.Close()

		for _, id := range ids {
			txData, err := get(txn, txKey(id))
			if err != nil {
				return err
			}
			if txData != nil {
				txs = append(txs, txData)
			}
		}
		return nil
	})
	if err != nil {
		return databaseError(err)
	}
	value, err := json.Marshal(txs)
	if err != nil {
		return databaseError(err)
	}
	return &abcitypes.QueryResponse{Key: subject, Value: value, Log: fmt.Sprintf("%d transactions", len(txs))}
}

// CheckTx admits well-formed ledger transactions only
func (app *Application) CheckTx(_ context.Context, check *abcitypes.CheckTxRequest) (*abcitypes.CheckTxResponse, error) {
	if _, err := decodeTx(check.Tx); err != nil {
		return &abcitypes.CheckTxResponse{Code: CodeInvalidTx, Log: err.Error()}, nil
	}
	return &abcitypes.CheckTxResponse{Code: CodeOK}, nil
}

func (app *Application) InitChain(_ context.Context, _ *abcitypes.InitChainRequest) (*abcitypes.InitChainResponse, error) {
	return &abcitypes.InitChainResponse{}, nil
}

func (app *Application) PrepareProposal(_ context.Context, proposal *abcitypes.PrepareProposalRequest) (*abcitypes.PrepareProposalResponse, error) {
	return &abcitypes.PrepareProposalResponse{Txs: proposal.Txs}, nil
}

// ProcessProposal rejects blocks carrying malformed transactions. Requests are not
// replayed on other nodes: stock deductions must happen exactly once, so the
// originating node's response is what gets recorded.
func (app *Application) ProcessProposal(_ context.Context, proposal *abcitypes.ProcessProposalRequest) (*abcitypes.ProcessProposalResponse, error) {
	for _, txBytes := range proposal.Txs {
		if _, err := decodeTx(txBytes); err != nil {
			app.logger.Info("Voted invalid", "err", err)
			return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT}, nil
		}
	}
	return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT}, nil
}

func (app *Application) FinalizeBlock(_ context.Context, req *abcitypes.FinalizeBlockRequest) (*abcitypes.FinalizeBlockResponse, error) {
	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock != nil {
		app.onGoingBlock.Discard()
	}
	app.onGoingBlock = app.badgerDB.NewTransaction(true)

	for i, txBytes := range req.Txs {
		tx, err := decodeTx(txBytes)
		if err != nil {
			txResults[i] = &abcitypes.ExecTxResult{Code: CodeInvalidTx, Log: "Invalid transaction format"}
			continue
		}
		tx.BlockHeight = req.Height
		txResults[i] = app.storeTransaction(tx, req.Height)
	}

	appHash := calculateAppHash(txResults)
	if err := app.onGoingBlock.Set(keyLastBlockHeight, int64ToBytes(req.Height)); err != nil {
		return nil, fmt.Errorf("storing block height: %w", err)
	}
	if err := app.onGoingBlock.Set(keyLastBlockAppHash, appHash); err != nil {
		return nil, fmt.Errorf("storing app hash: %w", err)
	}

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, nil
}

func (app *Application) Commit(_ context.Context, _ *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock == nil {
		return &abcitypes.CommitResponse{}, nil
	}
	err := app.onGoingBlock.Commit()
	app.onGoingBlock = nil
	if err != nil {
		app.logger.Error("Error committing block", "err", err)
		return nil, err
	}
	return &abcitypes.CommitResponse{}, nil
}

func (app *Application) ListSnapshots(_ context.Context, _ *abcitypes.ListSnapshotsRequest) (*abcitypes.ListSnapshotsResponse, error) {
	return &abcitypes.ListSnapshotsResponse{}, nil
}

func (app *Application) OfferSnapshot(_ context.Context, _ *abcitypes.OfferSnapshotRequest) (*abcitypes.OfferSnapshotResponse, error) {
	return &abcitypes.OfferSnapshotResponse{}, nil
}

func (app *Application) LoadSnapshotChunk(_ context.Context, _ *abcitypes.LoadSnapshotChunkRequest) (*abcitypes.LoadSnapshotChunkResponse, error) {
	return &abcitypes.LoadSnapshotChunkResponse{}, nil
}

func (app *Application) ApplySnapshotChunk(_ context.Context, _ *abcitypes.ApplySnapshotChunkRequest) (*abcitypes.ApplySnapshotChunkResponse, error) {
	return &abcitypes.ApplySnapshotChunkResponse{Result: abcitypes.APPLY_SNAPSHOT_CHUNK_RESULT_ACCEPT}, nil
}

func (app *Application) ExtendVote(_ context.Context, _ *abcitypes.ExtendVoteRequest) (*abcitypes.ExtendVoteResponse, error) {
	return &abcitypes.ExtendVoteResponse{}, nil
}

func (app *Application) VerifyVoteExtension(_ context.Context, _ *abcitypes.VerifyVoteExtensionRequest) (*abcitypes.VerifyVoteExtensionResponse, error) {
	return &abcitypes.VerifyVoteExtensionResponse{}, nil
}

// storeTransaction writes the transaction, its status and its subject index entry
// into the ongoing block
func (app *Application) storeTransaction(tx *srvreg.Transaction, height int64) *abcitypes.ExecTxResult {
	txID := GenerateTxID(tx.Request.RequestID, tx.OriginNodeID)
	raw, err := tx.SerializeToBytes()
	if err != nil {
		return &abcitypes.ExecTxResult{Code: CodeInvalidTx, Log: err.Error()}
	}

	const status = "accepted"
	writes := []struct{ key, val []byte }{
		{txKey([]byte(txID)), raw},
		{statusKey([]byte(txID)), []byte(status)},
		{subjectIndexKey([]byte(tx.Subject), height, []byte(txID)), nil},
	}
	for _, w := range writes {
		if err := app.onGoingBlock.Set(w.key, w.val); err != nil {
			app.logger.Error("Error storing transaction", "tx_id", txID, "err", err)
			return &abcitypes.ExecTxResult{Code: CodeDatabaseError, Log: fmt.Sprintf("Database error: %v", err)}
		}
	}

	return &abcitypes.ExecTxResult{
		Code: CodeOK,
		Data: []byte(txID),
		Log:  status,
		Events: []abcitypes.Event{
			{
				Type: "ledger_tx",
				Attributes: []abcitypes.EventAttribute{
					{Key: "tx_id", Value: txID, Index: true},
					{Key: "request_id", Value: tx.Request.RequestID, Index: true},
					{Key: "origin_node", Value: tx.OriginNodeID, Index: true},
					{Key: "subject", Value: tx.Subject, Index: true},
					{Key: "status", Value: status, Index: true},
				},
			},
			{
				Type: "request",
				Attributes: []abcitypes.EventAttribute{
					{Key: "method", Value: tx.Request.Method, Index: true},
					{Key: "path", Value: tx.Request.Path, Index: true},
				},
			},
		},
	}
}

func decodeTx(txBytes []byte) (*srvreg.Transaction, error) {
	var tx srvreg.Transaction
	if err := json.Unmarshal(txBytes, &tx); err != nil {
		return nil, fmt.Errorf("fail to parse tx: %w", err)
	}
	if tx.Request.RequestID == "" {
		return nil, errors.New("tx has no request id")
	}
	if tx.Subject == "" {
		return nil, errors.New("tx has no subject")
	}
	return &tx, nil
}

func get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func databaseError(err error) *abcitypes.QueryResponse {
	return &abcitypes.QueryResponse{Code: CodeDatabaseError, Log: fmt.Sprintf("Database error: %v", err)}
}

func txKey(txID []byte) []byte     { return append([]byte("tx:"), txID...) }
func statusKey(txID []byte) []byte { return append([]byte("status:"), txID...) }

const heightWidth = 19

// subject:<subject>:<zero padded height>:<txid>, so a prefix scan yields commit order
func subjectIndexPrefix(subject []byte) []byte {
	return fmt.Appendf(nil, "%s%s:", SubjectPrefix, subject)
}

func subjectIndexKey(subject []byte, height int64, txID []byte) []byte {
	return fmt.Appendf(subjectIndexPrefix(subject), "%0*d:%s", heightWidth, height, txID)
}

// GenerateTxID derives the ledger ID of a transaction
func GenerateTxID(requestID, nodeID string) string {
	hash := sha256.Sum256([]byte(requestID + nodeID))
	return hex.EncodeToString(hash[:])
}

func calculateAppHash(txResults []*abcitypes.ExecTxResult) []byte {
	h := sha256.New()
	for _, result := range txResults {
		h.Write(result.Data)
	}
	return h.Sum(nil)
}

func int64ToBytes(i int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(i))
}

func bytesToInt64(buf []byte) int64 {
	if len(buf) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf))
}
