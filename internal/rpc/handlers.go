package rpc

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/builder"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/snapshot"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// maxRange caps the number of blocks a history query may span.
const maxRange = 1000

// ── Status and persistence ──────────────────────────────────────────────

func (s *Server) handleGetStatus(_ *Request) (interface{}, *Error) {
	status, tip, err := s.wallet.SyncStatus()
	if err != nil {
		return nil, walletError(err)
	}
	res := &StatusResult{KnownTip: tip, Sync: status.String()}
	if res.BlockCount, err = s.wallet.GetBlockCount(); err != nil {
		return nil, walletError(err)
	}
	if res.BlockCount > 0 {
		if hs, err := s.wallet.GetBlockHashes(res.BlockCount-1, 1); err == nil && len(hs) == 1 {
			res.LastBlockHash = hs[0].String()
		}
	}
	if res.AddressCount, err = s.wallet.GetAddressCount(); err != nil {
		return nil, walletError(err)
	}
	if res.ViewOnly, err = s.wallet.IsViewOnly(); err != nil {
		return nil, walletError(err)
	}
	if res.Transactions, err = s.wallet.GetTransactionCount(); err != nil {
		return nil, walletError(err)
	}
	if res.Deposits, err = s.wallet.GetDepositCount(); err != nil {
		return nil, walletError(err)
	}
	return res, nil
}

func (s *Server) handleSave(req *Request) (interface{}, *Error) {
	var params SaveParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	level := snapshot.All
	if params.Level != "" {
		l, err := snapshot.ParseLevel(params.Level)
		if err != nil {
			return nil, walletError(err)
		}
		level = l
	}
	if err := s.wallet.Save(level, nil); err != nil {
		return nil, walletError(err)
	}
	return &OKResult{OK: true}, nil
}

func (s *Server) handleReset(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.wallet.Reset(params.Height); err != nil {
		return nil, walletError(err)
	}
	s.logger.Info().Uint32("height", params.Height).Msg("Wallet reset over RPC")
	return &OKResult{OK: true}, nil
}

// ── Addresses and keys ──────────────────────────────────────────────────

func (s *Server) handleGetAddresses(_ *Request) (interface{}, *Error) {
	addrs, err := s.wallet.GetAddresses()
	if err != nil {
		return nil, walletError(err)
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out, nil
}

func (s *Server) handleCreateAddress(req *Request) (interface{}, *Error) {
	var params CreateAddressParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if params.SecretKey != "" && params.PublicKey != "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "set at most one of secret_key and public_key"}
	}

	var (
		addr types.Address
		err  error
	)
	switch {
	case params.SecretKey != "":
		key, rpcErr := decodeHex("secret_key", params.SecretKey)
		if rpcErr != nil {
			return nil, rpcErr
		}
		addr, err = s.wallet.CreateAddressFromSecret(key)
	case params.PublicKey != "":
		key, rpcErr := decodeHex("public_key", params.PublicKey)
		if rpcErr != nil {
			return nil, rpcErr
		}
		addr, err = s.wallet.CreateAddressFromPublic(key)
	default:
		addr, err = s.wallet.CreateAddress()
	}
	if err != nil {
		return nil, walletError(err)
	}
	return addr.String(), nil
}

func (s *Server) handleDeleteAddress(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.wallet.DeleteAddress(addr); err != nil {
		return nil, walletError(err)
	}
	return &OKResult{OK: true}, nil
}

func (s *Server) handleGetViewKey(_ *Request) (interface{}, *Error) {
	kp, err := s.wallet.GetViewKey()
	if err != nil {
		return nil, walletError(err)
	}
	return keyPairResult(kp), nil
}

func (s *Server) handleGetSpendKeys(req *Request) (interface{}, *Error) {
	var params SpendKeysParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if (params.Address == "") == (params.Index == nil) {
		return nil, &Error{Code: CodeInvalidParams, Message: "set exactly one of address and index"}
	}

	var (
		kp  wallet.KeyPair
		err error
	)
	if params.Index != nil {
		kp, err = s.wallet.GetAddressSpendKeyAt(*params.Index)
	} else {
		addr, rpcErr := decodeAddress(params.Address)
		if rpcErr != nil {
			return nil, rpcErr
		}
		kp, err = s.wallet.GetAddressSpendKey(addr)
	}
	if err != nil {
		return nil, walletError(err)
	}
	return keyPairResult(kp), nil
}

// ── Balances and outputs ────────────────────────────────────────────────

func (s *Server) handleGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if params.Address == "" {
		b, err := s.wallet.Balance()
		if err != nil {
			return nil, walletError(err)
		}
		return &BalanceResult{Balance: b}, nil
	}

	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	b, err := s.wallet.AddressBalance(addr)
	if err != nil {
		return nil, walletError(err)
	}
	return &BalanceResult{Address: addr.String(), Balance: b}, nil
}

func (s *Server) handleGetUnspent(req *Request) (interface{}, *Error) {
	var params AddressesParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	addrs, rpcErr := decodeAddresses(params.Addresses)
	if rpcErr != nil {
		return nil, rpcErr
	}
	outs, err := s.wallet.GetUnspentOutputs(addrs...)
	if err != nil {
		return nil, walletError(err)
	}
	res := make([]OutputResult, len(outs))
	for i, o := range outs {
		res[i] = outputResult(o)
	}
	return res, nil
}

// ── History ─────────────────────────────────────────────────────────────

func (s *Server) handleGetTransaction(req *Request) (interface{}, *Error) {
	var params TransactionParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	var (
		t   ledger.Transaction
		err error
	)
	switch {
	case params.ID != nil:
		t, err = s.wallet.GetTransaction(ledger.TransactionID(*params.ID))
	case params.Hash != "":
		hash, rpcErr := decodeHash("hash", params.Hash)
		if rpcErr != nil {
			return nil, rpcErr
		}
		t, err = s.wallet.GetTransactionByHash(hash)
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: "id or hash is required"}
	}
	if err != nil {
		return nil, walletError(err)
	}
	return transactionResult(t), nil
}

func (s *Server) handleGetTransactions(req *Request) (interface{}, *Error) {
	var params RangeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if rpcErr := checkRange(params.Count); rpcErr != nil {
		return nil, rpcErr
	}

	var (
		blocks []ledger.BlockTransactions
		err    error
	)
	if params.BlockHash != "" {
		hash, rpcErr := decodeHash("block_hash", params.BlockHash)
		if rpcErr != nil {
			return nil, rpcErr
		}
		blocks, err = s.wallet.GetTransactionsByBlockHash(hash, params.Count)
	} else {
		blocks, err = s.wallet.GetTransactions(params.FirstHeight, params.Count)
	}
	if err != nil {
		return nil, walletError(err)
	}

	res := make([]BlockTransactionsResult, 0, len(blocks))
	for _, b := range blocks {
		br := BlockTransactionsResult{
			BlockHash:    b.BlockHash.String(),
			Height:       b.Height,
			Transactions: make([]TransactionResult, 0, len(b.Transactions)),
		}
		for _, id := range b.Transactions {
			t, err := s.wallet.GetTransaction(id)
			if err != nil {
				return nil, walletError(err)
			}
			br.Transactions = append(br.Transactions, transactionResult(t))
		}
		res = append(res, br)
	}
	return res, nil
}

func (s *Server) handleGetUnconfirmed(_ *Request) (interface{}, *Error) {
	txs, err := s.wallet.GetUnconfirmedTransactions()
	if err != nil {
		return nil, walletError(err)
	}
	res := make([]TransactionResult, len(txs))
	for i, t := range txs {
		res[i] = transactionResult(t)
	}
	return res, nil
}

func (s *Server) handleGetDelayed(_ *Request) (interface{}, *Error) {
	ids, err := s.wallet.GetDelayedTransactionIDs()
	if err != nil {
		return nil, walletError(err)
	}
	res := make([]uint64, len(ids))
	for i, id := range ids {
		res[i] = uint64(id)
	}
	return res, nil
}

func (s *Server) handleGetByPaymentIDs(req *Request) (interface{}, *Error) {
	var params PaymentIDsParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if len(params.PaymentIDs) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "payment_ids is required"}
	}
	ids := make([]types.Hash, len(params.PaymentIDs))
	for i, p := range params.PaymentIDs {
		h, rpcErr := decodeHash("payment_id", p)
		if rpcErr != nil {
			return nil, rpcErr
		}
		ids[i] = h
	}

	groups, err := s.wallet.GetTransactionsByPaymentIDs(ids)
	if err != nil {
		return nil, walletError(err)
	}
	res := make([]PaymentIDResult, len(groups))
	for i, g := range groups {
		res[i] = PaymentIDResult{
			PaymentID:    g.PaymentID.String(),
			Transactions: make([]TransactionResult, len(g.Transactions)),
		}
		for j, t := range g.Transactions {
			res[i].Transactions[j] = transactionResult(t)
		}
	}
	return res, nil
}

func (s *Server) handleGetBlockHashes(req *Request) (interface{}, *Error) {
	var params RangeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if rpcErr := checkRange(params.Count); rpcErr != nil {
		return nil, rpcErr
	}
	hs, err := s.wallet.GetBlockHashes(params.FirstHeight, params.Count)
	if err != nil {
		return nil, walletError(err)
	}
	res := make([]string, len(hs))
	for i, h := range hs {
		res[i] = h.String()
	}
	return res, nil
}

// ── Sending ─────────────────────────────────────────────────────────────

func (s *Server) handleTransfer(ctx context.Context, req *Request) (interface{}, *Error) {
	p, rpcErr := transferParameters(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, key, err := s.wallet.Transfer(ctx, p)
	if err != nil {
		return nil, walletError(err)
	}
	t, err := s.wallet.GetTransaction(id)
	if err != nil {
		return nil, walletError(err)
	}
	n := uint64(id)
	return &SendResult{ID: &n, Hash: t.Hash.String(), TxKey: hex.EncodeToString(key)}, nil
}

func (s *Server) handleMakeTransaction(req *Request) (interface{}, *Error) {
	p, rpcErr := transferParameters(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.wallet.MakeTransaction(p)
	if err != nil {
		return nil, walletError(err)
	}
	return &IDResult{ID: uint64(id)}, nil
}

func (s *Server) handleCommitTransaction(ctx context.Context, req *Request) (interface{}, *Error) {
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.wallet.CommitTransaction(ctx, ledger.TransactionID(params.ID)); err != nil {
		return nil, walletError(err)
	}
	return &OKResult{OK: true}, nil
}

func (s *Server) handleRollbackTransaction(req *Request) (interface{}, *Error) {
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.wallet.RollbackUncommittedTransaction(ledger.TransactionID(params.ID)); err != nil {
		return nil, walletError(err)
	}
	return &OKResult{OK: true}, nil
}

func (s *Server) handleOptimize(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := s.wallet.CreateOptimizationTransaction(ctx, addr)
	if err != nil {
		return nil, walletError(err)
	}
	return &SendResult{Hash: hash.String()}, nil
}

// transferParameters decodes wallet_transfer params into builder
// parameters.
func transferParameters(req *Request) (builder.Parameters, *Error) {
	var params TransferParam
	if err := parseParams(req, &params); err != nil {
		return builder.Parameters{}, err
	}
	if len(params.Destinations) == 0 {
		return builder.Parameters{}, &Error{Code: CodeInvalidParams, Message: "destinations is required"}
	}

	p := builder.Parameters{
		Fee:             params.Fee,
		Mixin:           params.Mixin,
		Messages:        params.Messages,
		UnlockTimestamp: params.UnlockTime,
		TTL:             params.TTL,
		RelaxMixin:      params.RelaxMixin,
	}

	var rpcErr *Error
	if p.SourceAddresses, rpcErr = decodeAddresses(params.Sources); rpcErr != nil {
		return builder.Parameters{}, rpcErr
	}
	for _, d := range params.Destinations {
		addr, rpcErr := decodeAddress(d.Address)
		if rpcErr != nil {
			return builder.Parameters{}, rpcErr
		}
		p.Destinations = append(p.Destinations, builder.Destination{Address: addr, Amount: d.Amount})
	}
	if params.Extra != "" {
		if p.Extra, rpcErr = decodeHex("extra", params.Extra); rpcErr != nil {
			return builder.Parameters{}, rpcErr
		}
	}
	if params.PaymentID != "" {
		if p.PaymentID, rpcErr = decodeHash("payment_id", params.PaymentID); rpcErr != nil {
			return builder.Parameters{}, rpcErr
		}
		p.HasPaymentID = true
	}
	if params.ChangeAddress != "" {
		if p.ChangeDestination, rpcErr = decodeAddress(params.ChangeAddress); rpcErr != nil {
			return builder.Parameters{}, rpcErr
		}
	}
	if params.DonationAddress != "" {
		if p.Donation.Address, rpcErr = decodeAddress(params.DonationAddress); rpcErr != nil {
			return builder.Parameters{}, rpcErr
		}
		p.Donation.Threshold = params.DonationLimit
	}
	return p, nil
}

// ── Deposits ────────────────────────────────────────────────────────────

func (s *Server) handleCreateDeposit(ctx context.Context, req *Request) (interface{}, *Error) {
	var params DepositParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	src, rpcErr := decodeAddress(params.Source)
	if rpcErr != nil {
		return nil, rpcErr
	}
	dst := src
	if params.Destination != "" {
		if dst, rpcErr = decodeAddress(params.Destination); rpcErr != nil {
			return nil, rpcErr
		}
	}
	hash, err := s.wallet.CreateDeposit(ctx, params.Amount, params.Term, src, dst)
	if err != nil {
		return nil, walletError(err)
	}
	return &SendResult{Hash: hash.String()}, nil
}

func (s *Server) handleWithdrawDeposits(ctx context.Context, req *Request) (interface{}, *Error) {
	var params WithdrawParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if len(params.IDs) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "ids is required"}
	}
	dst, rpcErr := decodeAddress(params.Destination)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ids := make([]ledger.DepositID, len(params.IDs))
	for i, id := range params.IDs {
		ids[i] = ledger.DepositID(id)
	}
	hash, err := s.wallet.WithdrawDeposits(ctx, ids, dst)
	if err != nil {
		return nil, walletError(err)
	}
	return &SendResult{Hash: hash.String()}, nil
}

func (s *Server) handleGetDeposit(req *Request) (interface{}, *Error) {
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	d, err := s.wallet.GetDeposit(ledger.DepositID(params.ID))
	if err != nil {
		return nil, walletError(err)
	}
	return depositResult(d), nil
}

func (s *Server) handleGetDeposits(req *Request) (interface{}, *Error) {
	var params RangeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if rpcErr := checkRange(params.Count); rpcErr != nil {
		return nil, rpcErr
	}

	var (
		blocks []ledger.BlockDeposits
		err    error
	)
	if params.BlockHash != "" {
		hash, rpcErr := decodeHash("block_hash", params.BlockHash)
		if rpcErr != nil {
			return nil, rpcErr
		}
		blocks, err = s.wallet.GetDepositsByBlockHash(hash, params.Count)
	} else {
		blocks, err = s.wallet.GetDeposits(params.FirstHeight, params.Count)
	}
	if err != nil {
		return nil, walletError(err)
	}

	res := make([]BlockDepositsResult, 0, len(blocks))
	for _, b := range blocks {
		br := BlockDepositsResult{
			BlockHash: b.BlockHash.String(),
			Height:    b.Height,
			Deposits:  make([]DepositResult, 0, len(b.Deposits)),
		}
		for _, id := range b.Deposits {
			d, err := s.wallet.GetDeposit(id)
			if err != nil {
				return nil, walletError(err)
			}
			br.Deposits = append(br.Deposits, depositResult(d))
		}
		res = append(res, br)
	}
	return res, nil
}

func (s *Server) handleCalculateInterest(req *Request) (interface{}, *Error) {
	var params InterestParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return &AmountResult{Amount: s.wallet.CalculateInterest(params.Amount, params.Term)}, nil
}

// ── Proofs and transaction keys ─────────────────────────────────────────

func (s *Server) handleGetTxKey(req *Request) (interface{}, *Error) {
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	key, err := s.wallet.GetTransactionSecretKey(ledger.TransactionID(params.ID))
	if err != nil {
		return nil, walletError(err)
	}
	return &KeyResult{Key: hex.EncodeToString(key)}, nil
}

func (s *Server) handleGetDeterministicTxKey(req *Request) (interface{}, *Error) {
	var params TransactionParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	key, err := s.wallet.GetTransactionDeterministicSecretKey(hash)
	if err != nil {
		return nil, walletError(err)
	}
	return &KeyResult{Key: hex.EncodeToString(key)}, nil
}

func (s *Server) handleGetTxProof(req *Request) (interface{}, *Error) {
	var params TxProofParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := decodeHex("tx_key", params.TxKey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	proof, err := s.wallet.GetTxProof(hash, addr, key)
	if err != nil {
		return nil, walletError(err)
	}
	return &ProofResult{Proof: proof}, nil
}

func (s *Server) handleCheckTxProof(req *Request) (interface{}, *Error) {
	var params TxProofParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pub, rpcErr := decodeHex("tx_public_key", params.TxPublicKey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &ValidResult{Valid: wallet.CheckTxProof(hash, addr, pub, params.Proof)}, nil
}

func (s *Server) handleGetReserveProof(req *Request) (interface{}, *Error) {
	var params ReserveProofParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	proof, err := s.wallet.GetReserveProof(addr, params.Amount, params.Message)
	if err != nil {
		return nil, walletError(err)
	}
	return proof, nil
}

func (s *Server) handleVerifyReserveProof(req *Request) (interface{}, *Error) {
	var params VerifyReserveProofParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	total, err := wallet.VerifyReserveProof(params.Proof)
	if err != nil {
		return nil, walletError(err)
	}
	return &AmountResult{Amount: total}, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

// walletError maps wallet errors onto JSON-RPC error codes.
func walletError(err error) *Error {
	code := CodeInternalError
	switch {
	case errors.Is(err, walleterr.ErrInvalidParameters):
		code = CodeInvalidParams
	case errors.Is(err, walleterr.ErrUnknownAddress),
		errors.Is(err, walleterr.ErrUnknownIdentifier):
		code = CodeNotFound
	case errors.Is(err, walleterr.ErrInsufficientFunds):
		code = CodeInsufficientFunds
	case errors.Is(err, walleterr.ErrInvalidTransactionState):
		code = CodeInvalidState
	case errors.Is(err, walleterr.ErrNotInitialized),
		errors.Is(err, walleterr.ErrStopped):
		code = CodeNotReady
	case errors.Is(err, walleterr.ErrBroadcast):
		code = CodeBroadcast
	case errors.Is(err, walleterr.ErrSynchronizationDivergence):
		code = CodeDivergence
	}
	return &Error{Code: code, Message: err.Error()}
}

func checkRange(count uint32) *Error {
	if count == 0 || count > maxRange {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("count must be in range [1, %d]", maxRange)}
	}
	return nil
}

func decodeAddress(s string) (types.Address, *Error) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "invalid address: " + err.Error()}
	}
	return addr, nil
}

func decodeAddresses(ss []string) ([]types.Address, *Error) {
	var addrs []types.Address
	for _, s := range ss {
		addr, rpcErr := decodeAddress(s)
		if rpcErr != nil {
			return nil, rpcErr
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func decodeHash(field, s string) (types.Hash, *Error) {
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be 32-byte hex", field)}
	}
	return h, nil
}

func decodeHex(field, s string) ([]byte, *Error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be hex", field)}
	}
	return b, nil
}
