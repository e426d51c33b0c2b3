package rpcclient

import (
	"context"
	"encoding/hex"

	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/tracker"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// ChainInfo is the node's view of the chain tip.
type ChainInfo struct {
	Height  uint32     `json:"height"`
	TipHash types.Hash `json:"tip_hash"`
}

type submitParams struct {
	Tx string `json:"tx"`
}

type heightParams struct {
	Height uint32 `json:"height"`
}

type scanParams struct {
	Height  uint32 `json:"height"`
	ViewKey string `json:"view_key"`
}

// BlockResult is the wire form of a scanned block.
type BlockResult struct {
	Hash         types.Hash `json:"hash"`
	Height       uint32     `json:"height"`
	Timestamp    uint64     `json:"timestamp"`
	Transactions []TxResult `json:"transactions"`
}

// TxResult is the wire form of a wallet-relevant transaction.
type TxResult struct {
	Hash       types.Hash        `json:"hash"`
	Fee        uint64            `json:"fee"`
	UnlockTime uint64            `json:"unlock_time"`
	Extra      []byte            `json:"extra,omitempty"`
	IsBase     bool              `json:"is_base,omitempty"`
	Outputs    []OutputResult    `json:"outputs"`
	Inputs     []types.OutputRef `json:"inputs"`
}

// OutputResult is the wire form of an output paid to a wallet address.
type OutputResult struct {
	Index        uint32        `json:"index"`
	GlobalIndex  uint64        `json:"global_index"`
	Address      types.Address `json:"address"`
	Amount       uint64        `json:"amount"`
	UnlockHeight uint32        `json:"unlock_height,omitempty"`
	DepositTerm  uint32        `json:"deposit_term,omitempty"`
}

// Block converts the wire form into a tracker block.
func (b *BlockResult) Block() *tracker.Block {
	blk := &tracker.Block{
		Hash:      b.Hash,
		Height:    b.Height,
		Timestamp: b.Timestamp,
	}
	for _, t := range b.Transactions {
		tx := tracker.Transaction{
			Hash:       t.Hash,
			Fee:        t.Fee,
			UnlockTime: t.UnlockTime,
			Extra:      t.Extra,
			IsBase:     t.IsBase,
			Inputs:     t.Inputs,
		}
		for _, o := range t.Outputs {
			tx.Outputs = append(tx.Outputs, outputs.Received{
				Ref:          types.OutputRef{TxHash: t.Hash, Index: o.Index},
				GlobalIndex:  o.GlobalIndex,
				Address:      o.Address,
				Amount:       o.Amount,
				UnlockHeight: o.UnlockHeight,
				DepositTerm:  o.DepositTerm,
			})
		}
		blk.Transactions = append(blk.Transactions, tx)
	}
	return blk
}

// Broadcast submits a signed transaction blob to the node's mempool.
func (c *Client) Broadcast(ctx context.Context, blob []byte) error {
	return c.Call(ctx, "tx_submit", submitParams{Tx: hex.EncodeToString(blob)}, nil)
}

// ChainInfo returns the node's current tip.
func (c *Client) ChainInfo(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	if err := c.Call(ctx, "chain_getInfo", nil, &info); err != nil {
		return ChainInfo{}, err
	}
	return info, nil
}

// BlockHash returns the hash of the node's block at height.
func (c *Client) BlockHash(ctx context.Context, height uint32) (types.Hash, error) {
	var hash types.Hash
	if err := c.Call(ctx, "chain_getBlockHash", heightParams{Height: height}, &hash); err != nil {
		return types.Hash{}, err
	}
	return hash, nil
}

// ScanBlock returns the block at height filtered to the outputs and inputs
// of the wallet identified by its view public key.
func (c *Client) ScanBlock(ctx context.Context, height uint32, viewKey []byte) (*tracker.Block, error) {
	var res BlockResult
	params := scanParams{Height: height, ViewKey: hex.EncodeToString(viewKey)}
	if err := c.Call(ctx, "wallet_scanBlock", params, &res); err != nil {
		return nil, err
	}
	if res.Height != height {
		return nil, errors.Newf("node returned block %d for height %d", res.Height, height)
	}
	return res.Block(), nil
}
