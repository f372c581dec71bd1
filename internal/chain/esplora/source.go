package esplora

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/satchel/internal/chain"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// chainPageSize is the number of confirmed transactions Esplora returns
// per history page.
const chainPageSize = 25

// maxHistoryPages bounds pagination for a single script.
const maxHistoryPages = 400

type txVin struct {
	TxID       string `json:"txid"`
	Vout       uint32 `json:"vout"`
	IsCoinbase bool   `json:"is_coinbase"`
}

type txVout struct {
	ScriptPubKey string `json:"scriptpubkey"`
	Value        int64  `json:"value"`
}

type txStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int32 `json:"block_height"`
}

type esploraTx struct {
	TxID   string   `json:"txid"`
	Vin    []txVin  `json:"vin"`
	Vout   []txVout `json:"vout"`
	Status txStatus `json:"status"`
}

// ScriptHash returns the Esplora/Electrum script hash: SHA-256 of the
// script, byte-reversed, hex encoded.
func ScriptHash(script []byte) string {
	sum := sha256.Sum256(script)
	for i, j := 0, len(sum)-1; i < j; i, j = i+1, j-1 {
		sum[i], sum[j] = sum[j], sum[i]
	}
	return hex.EncodeToString(sum[:])
}

// FetchOutputs implements chain.Source. Scripts are queried in parallel;
// the first failure cancels the rest and nothing partial is returned.
func (c *Client) FetchOutputs(ctx context.Context, scripts [][]byte) ([]chain.Output, error) {
	results := make([][]chain.Output, len(scripts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, script := range scripts {
		g.Go(func() error {
			history, err := c.history(gctx, script)
			if err != nil {
				return err
			}
			outs, err := outputsFor(script, history)
			if err != nil {
				return err
			}
			results[i] = outs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[wire.OutPoint]struct{})
	var all []chain.Output
	for _, outs := range results {
		for _, o := range outs {
			if _, dup := seen[o.OutPoint]; dup {
				continue
			}
			seen[o.OutPoint] = struct{}{}
			all = append(all, o)
		}
	}
	chain.SortOutputs(all)
	return all, nil
}

// history pages through every transaction touching script.
func (c *Client) history(ctx context.Context, script []byte) ([]esploraTx, error) {
	hash := ScriptHash(script)
	path := "/scripthash/" + hash + "/txs"

	var all []esploraTx
	for page := 0; page < maxHistoryPages; page++ {
		body, err := c.get(ctx, path, "scripthash_txs")
		if err != nil {
			return nil, err
		}
		var txs []esploraTx
		if err := json.Unmarshal(body, &txs); err != nil {
			return nil, walleterr.WithCause(walleterr.ErrChainUnavailable, fmt.Errorf("decoding history: %w", err))
		}
		all = append(all, txs...)

		confirmed, lastConfirmed := 0, ""
		for _, tx := range txs {
			if tx.Status.Confirmed {
				confirmed++
				lastConfirmed = tx.TxID
			}
		}
		if confirmed < chainPageSize {
			return all, nil
		}
		path = "/scripthash/" + hash + "/txs/chain/" + lastConfirmed
	}
	return nil, walleterr.WithDetails(walleterr.ErrChainUnavailable, map[string]string{
		"scripthash": hash,
		"reason":     "history too long",
	})
}

// outputsFor extracts the outputs paying to script from its history and
// marks those spent by another transaction in the same history.
func outputsFor(script []byte, history []esploraTx) ([]chain.Output, error) {
	scriptHex := hex.EncodeToString(script)

	spent := make(map[wire.OutPoint]bool)
	for _, tx := range history {
		for _, in := range tx.Vin {
			if in.IsCoinbase {
				continue
			}
			h, err := chainhash.NewHashFromStr(in.TxID)
			if err != nil {
				return nil, badPayload(err)
			}
			spent[wire.OutPoint{Hash: *h, Index: in.Vout}] = true
		}
	}

	var outs []chain.Output
	seen := make(map[wire.OutPoint]bool)
	for _, tx := range history {
		h, err := chainhash.NewHashFromStr(tx.TxID)
		if err != nil {
			return nil, badPayload(err)
		}
		for vout, out := range tx.Vout {
			if !strings.EqualFold(out.ScriptPubKey, scriptHex) {
				continue
			}
			op := wire.OutPoint{Hash: *h, Index: uint32(vout)} //nolint:gosec // vout index fits uint32
			if seen[op] {
				continue
			}
			seen[op] = true

			height := int32(0)
			if tx.Status.Confirmed {
				height = tx.Status.BlockHeight
			}
			outs = append(outs, chain.Output{
				OutPoint: op,
				Value:    out.Value,
				Height:   height,
				Spent:    spent[op],
				PkScript: append([]byte(nil), script...),
			})
		}
	}
	return outs, nil
}

func badPayload(err error) error {
	return walleterr.WithCause(walleterr.ErrChainUnavailable, fmt.Errorf("malformed esplora payload: %w", err))
}

// Broadcast implements chain.Source. It is attempted once; a 4xx answer
// is a rejection carrying the node's reason.
func (c *Client) Broadcast(ctx context.Context, rawTx []byte) (chainhash.Hash, error) {
	var zero chainhash.Hash

	resp, err := c.do(ctx, http.MethodPost, "/tx", "text/plain", []byte(hex.EncodeToString(rawTx)), "broadcast")
	if err != nil {
		return zero, asChainUnavailable(ctx, err)
	}

	reason := strings.TrimSpace(string(resp.body))
	if resp.status != http.StatusOK {
		return zero, walleterr.WithDetails(walleterr.ErrBroadcastRejected, map[string]string{
			"status": strconv.Itoa(resp.status),
			"reason": truncate(reason, 300),
		})
	}

	txid, err := chainhash.NewHashFromStr(reason)
	if err != nil {
		return zero, badPayload(err)
	}
	c.logger.Debug("broadcast accepted: %s", txid)
	return *txid, nil
}

// TipHeight returns the height of the best block.
func (c *Client) TipHeight(ctx context.Context) (int32, error) {
	body, err := c.get(ctx, "/blocks/tip/height", "tip_height")
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, badPayload(err)
	}
	return int32(h), nil
}

var _ chain.Source = (*Client)(nil)
