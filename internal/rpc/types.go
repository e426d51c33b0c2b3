package rpc

import (
	"encoding/hex"

	"github.com/Klingon-tech/klingnet-wallet/internal/balance"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000

	// Wallet errors.
	CodeInsufficientFunds = -32001
	CodeInvalidState      = -32002
	CodeNotReady          = -32003
	CodeBroadcast         = -32004
	CodeDivergence        = -32005
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// SpendKeysParam is used by wallet_getSpendKeys. Index selects the address
// in creation order when Address is empty.
type SpendKeysParam struct {
	Address string `json:"address,omitempty"`
	Index   *int   `json:"index,omitempty"`
}

// AddressesParam is used by endpoints that take an optional address list.
type AddressesParam struct {
	Addresses []string `json:"addresses,omitempty"`
}

// CreateAddressParam is used by wallet_createAddress. At most one key may
// be set; none derives the next address from the seed.
type CreateAddressParam struct {
	SecretKey string `json:"secret_key,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// HeightParam is used by wallet_reset.
type HeightParam struct {
	Height uint32 `json:"height"`
}

// SaveParam is used by wallet_save.
type SaveParam struct {
	Level string `json:"level,omitempty"` // keys, transactions or all (default)
}

// RangeParam selects count blocks starting at a height or block hash.
type RangeParam struct {
	FirstHeight uint32 `json:"first_height"`
	BlockHash   string `json:"block_hash,omitempty"`
	Count       uint32 `json:"count"`
}

// TransactionParam selects a transaction by id or hash.
type TransactionParam struct {
	ID   *uint64 `json:"id,omitempty"`
	Hash string  `json:"hash,omitempty"`
}

// IDParam is used by endpoints that take a transaction or deposit id.
type IDParam struct {
	ID uint64 `json:"id"`
}

// PaymentIDsParam is used by wallet_getByPaymentIds.
type PaymentIDsParam struct {
	PaymentIDs []string `json:"payment_ids"`
}

// DestinationParam is one payment of a transfer.
type DestinationParam struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// TransferParam is used by wallet_transfer and wallet_makeTransaction.
type TransferParam struct {
	Sources         []string           `json:"sources,omitempty"`
	Destinations    []DestinationParam `json:"destinations"`
	Fee             uint64             `json:"fee"`
	Mixin           uint32             `json:"mixin"`
	Extra           string             `json:"extra,omitempty"` // hex
	PaymentID       string             `json:"payment_id,omitempty"`
	Messages        []string           `json:"messages,omitempty"`
	UnlockTime      uint64             `json:"unlock_time,omitempty"`
	TTL             uint32             `json:"ttl,omitempty"`
	ChangeAddress   string             `json:"change_address,omitempty"`
	DonationAddress string             `json:"donation_address,omitempty"`
	DonationLimit   uint64             `json:"donation_limit,omitempty"`
	RelaxMixin      bool               `json:"relax_mixin,omitempty"`
}

// DepositParam is used by wallet_createDeposit.
type DepositParam struct {
	Amount      uint64 `json:"amount"`
	Term        uint32 `json:"term"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"` // Defaults to source
}

// WithdrawParam is used by wallet_withdrawDeposits.
type WithdrawParam struct {
	IDs         []uint64 `json:"ids"`
	Destination string   `json:"destination"`
}

// InterestParam is used by wallet_calculateInterest.
type InterestParam struct {
	Amount uint64 `json:"amount"`
	Term   uint32 `json:"term"`
}

// TxProofParam is used by wallet_getTxProof and wallet_checkTxProof.
type TxProofParam struct {
	Hash        string `json:"hash"`
	Address     string `json:"address"`
	TxKey       string `json:"tx_key,omitempty"`        // Secret, for get
	TxPublicKey string `json:"tx_public_key,omitempty"` // For check
	Proof       string `json:"proof,omitempty"`         // For check
}

// ReserveProofParam is used by wallet_getReserveProof.
type ReserveProofParam struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	Message string `json:"message,omitempty"`
}

// VerifyReserveProofParam is used by wallet_verifyReserveProof.
type VerifyReserveProofParam struct {
	Proof *wallet.ReserveProof `json:"proof"`
}

// ── Result types ────────────────────────────────────────────────────────

// StatusResult is returned by wallet_getStatus.
type StatusResult struct {
	BlockCount    uint32 `json:"block_count"`
	KnownTip      uint32 `json:"known_tip"`
	Sync          string `json:"sync"`
	LastBlockHash string `json:"last_block_hash,omitempty"`
	AddressCount  int    `json:"address_count"`
	ViewOnly      bool   `json:"view_only"`
	Transactions  int    `json:"transactions"`
	Deposits      int    `json:"deposits"`
}

// BalanceResult is returned by wallet_getBalance.
type BalanceResult struct {
	Address string `json:"address,omitempty"`
	balance.Balance
}

// KeyPairResult is a hex key pair.
type KeyPairResult struct {
	Public string `json:"public"`
	Secret string `json:"secret,omitempty"`
}

func keyPairResult(kp wallet.KeyPair) KeyPairResult {
	return KeyPairResult{
		Public: hex.EncodeToString(kp.Public),
		Secret: hex.EncodeToString(kp.Secret),
	}
}

// OutputResult is one unspent output.
type OutputResult struct {
	TxHash       string `json:"tx_hash"`
	Index        uint32 `json:"index"`
	GlobalIndex  uint64 `json:"global_index"`
	Address      string `json:"address"`
	Amount       uint64 `json:"amount"`
	BlockHeight  uint32 `json:"block_height"`
	UnlockHeight uint32 `json:"unlock_height,omitempty"`
	State        string `json:"state"`
}

func outputResult(o outputs.Output) OutputResult {
	return OutputResult{
		TxHash:       o.Ref.TxHash.String(),
		Index:        o.Ref.Index,
		GlobalIndex:  o.GlobalIndex,
		Address:      o.Address.String(),
		Amount:       o.Amount,
		BlockHeight:  o.BlockHeight,
		UnlockHeight: o.UnlockHeight,
		State:        o.State.String(),
	}
}

// TransferResult is one leg of a transaction.
type TransferResult struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// TransactionResult is a transaction record.
type TransactionResult struct {
	ID           uint64           `json:"id"`
	Hash         string           `json:"hash"`
	State        string           `json:"state"`
	BlockHeight  *uint32          `json:"block_height,omitempty"` // nil = unconfirmed
	Timestamp    uint64           `json:"timestamp,omitempty"`
	CreationTime int64            `json:"creation_time,omitempty"`
	UnlockTime   uint64           `json:"unlock_time,omitempty"`
	TotalAmount  int64            `json:"total_amount"`
	Fee          uint64           `json:"fee"`
	IsBase       bool             `json:"is_base,omitempty"`
	Extra        string           `json:"extra,omitempty"`
	Messages     []string         `json:"messages,omitempty"`
	DepositIDs   []uint64         `json:"deposit_ids,omitempty"`
	Transfers    []TransferResult `json:"transfers,omitempty"`
}

func transactionResult(t ledger.Transaction) TransactionResult {
	r := TransactionResult{
		ID:           uint64(t.ID),
		Hash:         t.Hash.String(),
		State:        t.State.String(),
		Timestamp:    t.Timestamp,
		CreationTime: t.CreationTime,
		UnlockTime:   t.UnlockTime,
		TotalAmount:  t.TotalAmount,
		Fee:          t.Fee,
		IsBase:       t.IsBase,
		Messages:     t.Messages,
	}
	if t.BlockHeight != ledger.UnconfirmedHeight {
		h := t.BlockHeight
		r.BlockHeight = &h
	}
	if len(t.Extra) > 0 {
		r.Extra = hex.EncodeToString(t.Extra)
	}
	for i := uint32(0); i < t.DepositCount; i++ {
		r.DepositIDs = append(r.DepositIDs, uint64(t.FirstDepositID)+uint64(i))
	}
	for _, tr := range t.Transfers {
		r.Transfers = append(r.Transfers, TransferResult{
			Type:    tr.Type.String(),
			Address: tr.Address.String(),
			Amount:  tr.Amount,
		})
	}
	return r
}

// BlockTransactionsResult groups transactions by block.
type BlockTransactionsResult struct {
	BlockHash    string              `json:"block_hash"`
	Height       uint32              `json:"height"`
	Transactions []TransactionResult `json:"transactions"`
}

// PaymentIDResult groups transactions carrying one payment id.
type PaymentIDResult struct {
	PaymentID    string              `json:"payment_id"`
	Transactions []TransactionResult `json:"transactions"`
}

// DepositResult is a deposit record.
type DepositResult struct {
	ID           uint64  `json:"id"`
	Address      string  `json:"address"`
	Amount       uint64  `json:"amount"`
	Interest     uint64  `json:"interest"`
	Term         uint32  `json:"term"`
	Height       uint32  `json:"height"`
	UnlockHeight uint32  `json:"unlock_height"`
	Locked       bool    `json:"locked"`
	Orphaned     bool    `json:"orphaned,omitempty"`
	CreatingTxID uint64  `json:"creating_tx_id"`
	SpendingTxID *uint64 `json:"spending_tx_id,omitempty"`
	OutputTxHash string  `json:"output_tx_hash"`
	OutputIndex  uint32  `json:"output_index"`
}

func depositResult(d ledger.Deposit) DepositResult {
	r := DepositResult{
		ID:           uint64(d.ID),
		Address:      d.Address.String(),
		Amount:       d.Amount,
		Interest:     d.Interest,
		Term:         d.Term,
		Height:       d.Height,
		UnlockHeight: d.UnlockHeight,
		Locked:       d.Locked,
		Orphaned:     d.Orphaned,
		CreatingTxID: uint64(d.CreatingTransactionID),
		OutputTxHash: d.Output.TxHash.String(),
		OutputIndex:  d.Output.Index,
	}
	if d.SpendingTransactionID != ledger.NoTransaction {
		id := uint64(d.SpendingTransactionID)
		r.SpendingTxID = &id
	}
	return r
}

// BlockDepositsResult groups deposits by creating block.
type BlockDepositsResult struct {
	BlockHash string          `json:"block_hash"`
	Height    uint32          `json:"height"`
	Deposits  []DepositResult `json:"deposits"`
}

// SendResult is returned by endpoints that build and commit a transaction.
type SendResult struct {
	ID    *uint64 `json:"id,omitempty"`
	Hash  string  `json:"hash,omitempty"`
	TxKey string  `json:"tx_key,omitempty"`
}

// IDResult is returned by wallet_makeTransaction.
type IDResult struct {
	ID uint64 `json:"id"`
}

// KeyResult carries a hex key or proof.
type KeyResult struct {
	Key string `json:"key"`
}

// ProofResult carries a transaction proof.
type ProofResult struct {
	Proof string `json:"proof"`
}

// ValidResult reports a proof check.
type ValidResult struct {
	Valid bool `json:"valid"`
}

// AmountResult carries an amount.
type AmountResult struct {
	Amount uint64 `json:"amount"`
}

// OKResult acknowledges a state-changing call.
type OKResult struct {
	OK bool `json:"ok"`
}
