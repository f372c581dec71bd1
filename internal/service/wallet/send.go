package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/coinselect"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/txbuilder"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// ErrSendCanceled is returned when the confirmation callback declines.
var ErrSendCanceled = walleterr.New("SEND_CANCELED", "send canceled")

// Send selects inputs, signs a payment of req.Amount to req.To and
// broadcasts it. A dry run stops after signing and releases the inputs.
func (s *Service) Send(ctx context.Context, h *Handle, src chain.Source, req SendRequest) (result *SendResult, err error) {
	defer func() { s.metrics.RecordWalletOp("send", err) }()

	if h.WatchOnly() {
		return nil, walleterr.WithSuggestion(walleterr.ErrMissingKey, "open the wallet with its password to send")
	}
	if req.Amount <= 0 {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidAmount, map[string]string{
			"amount": strconv.FormatInt(req.Amount, 10),
		})
	}
	recipientScript, err := txbuilder.RecipientScript(req.To, h.net)
	if err != nil {
		return nil, err
	}
	rate, err := s.feeRate(req.FeeRate)
	if err != nil {
		return nil, err
	}

	walletCfg := s.walletConfig()
	dust := walletCfg.DustThreshold
	if dust <= 0 {
		dust = coinselect.DefaultDust()
	}

	spendable := h.tracker.Spendable(walletCfg.IncludeUnconfirmed)
	coins := make([]coinselect.Coin, 0, len(spendable))
	for _, u := range spendable {
		coins = append(coins, coinselect.Coin{OutPoint: u.OutPoint, Value: u.Value})
	}
	policy := coinselect.NewFeeRate(rate, len(recipientScript))
	sel, err := coinselect.Select(coins, req.Amount, policy, dust)
	if err != nil {
		return nil, err
	}

	lease, err := h.tracker.Reserve(sel.OutPoints())
	if err != nil {
		return nil, err
	}
	if err = h.builder.ApplySelection(sel, lease); err != nil {
		h.tracker.Release(lease)
		return nil, err
	}
	done := false
	defer func() {
		if !done {
			h.builder.Abort()
		}
	}()

	var changeScript []byte
	if sel.HasChange() {
		if changeScript, err = s.changeScript(h, req.DryRun); err != nil {
			return nil, err
		}
	}
	if err = h.builder.SetOutputs(req.To, req.Amount, changeScript); err != nil {
		return nil, err
	}
	if err = h.builder.Sign(ctx, h.pair); err != nil {
		return nil, err
	}
	tx, err := h.builder.Finalize()
	if err != nil {
		return nil, err
	}
	preview, err := s.preview(h, req, sel, tx)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		return &SendResult{Preview: preview, TxID: tx.TxHash()}, nil
	}
	if req.Confirm != nil && !req.Confirm(preview) {
		return nil, ErrSendCanceled
	}

	txid, bErr := h.builder.Broadcast(ctx, src)
	if txid == (chainhash.Hash{}) {
		s.metrics.RecordBroadcast(bErr)
		s.logger.Error("broadcast %s: %v", tx.TxHash(), bErr)
		return nil, walleterr.WithDetails(bErr, map[string]string{"txid": preview.TxID})
	}

	s.metrics.RecordBroadcast(nil)
	done = true
	result = &SendResult{Preview: preview, TxID: txid, Broadcast: true}
	if bErr != nil {
		s.logger.Error("broadcast %s relayed, pending record not saved: %v", txid, bErr)
		result.Warning = "pending inputs were not saved; run 'satchel sync' before the next send"
	}
	if err = h.builder.Reset(); err != nil {
		return nil, err
	}
	s.logger.Debug("broadcast %s spending %d inputs", txid, len(sel.Inputs))
	return result, nil
}

// feeRate resolves the requested rate against the configured default and
// ceiling.
func (s *Service) feeRate(requested float64) (float64, error) {
	fees := s.feesConfig()
	rate := requested
	if rate == 0 {
		rate = fees.RateSatVB
	}
	if rate <= 0 {
		return 0, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"fee_rate": strconv.FormatFloat(rate, 'f', -1, 64),
			"reason":   "fee rate must be positive",
		})
	}
	if fees.MaxRateSatVB > 0 && rate > fees.MaxRateSatVB {
		return 0, walleterr.WithDetails(walleterr.ErrFeeTooHigh, map[string]string{
			"fee_rate": strconv.FormatFloat(rate, 'f', -1, 64),
			"max":      strconv.FormatFloat(fees.MaxRateSatVB, 'f', -1, 64),
		})
	}
	return rate, nil
}

// changeScript returns the script of the next change address. A dry run
// peeks at it without advancing the counter.
func (s *Service) changeScript(h *Handle, dryRun bool) ([]byte, error) {
	if dryRun {
		return h.pair.Change.ScriptAt(h.tracker.Frontier(wallet.ChangeBranch).Next)
	}
	_, index, err := h.tracker.NextAddress(h.pair, wallet.ChangeBranch)
	if err != nil {
		return nil, err
	}
	return h.pair.Change.ScriptAt(index)
}

func (s *Service) preview(h *Handle, req SendRequest, sel *coinselect.Selection, tx *wire.MsgTx) (*SendPreview, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, walleterr.Wrap(err, "serializing transaction")
	}
	packet, err := h.builder.Packet()
	if err != nil {
		return nil, err
	}
	vsize := mempool.GetTxVirtualSize(btcutil.NewTx(tx))
	return &SendPreview{
		To:       req.To,
		Amount:   req.Amount,
		Fee:      sel.Fee,
		Change:   sel.Change,
		Inputs:   len(sel.Inputs),
		VSize:    int(vsize),
		FeeRate:  float64(sel.Fee) / float64(vsize),
		PSBT:     packet,
		TxID:     tx.TxHash().String(),
		RawTxHex: hex.EncodeToString(buf.Bytes()),
	}, nil
}

func (s *Service) walletConfig() (c config.WalletConfig) {
	if s.config != nil {
		return s.config.GetWallet()
	}
	return c
}

func (s *Service) feesConfig() (c config.FeesConfig) {
	if s.config != nil {
		return s.config.GetFees()
	}
	return c
}
