package wallet

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Sync rescans the wallet's addresses against src.
func (s *Service) Sync(ctx context.Context, h *Handle, src chain.Source) (*utxostore.SyncReport, error) {
	report, err := h.tracker.Sync(ctx, src, h.pair)
	s.metrics.RecordSync(err)
	s.metrics.RecordWalletOp("sync", err)
	if err != nil {
		s.logger.Error("sync %s: %v", h.Wallet.Name, err)
		return nil, err
	}
	s.logger.Debug("synced %s: %d added, %d removed, %d pending cleared",
		h.Wallet.Name, report.Added, report.Removed, len(report.Cleared))
	return report, nil
}

// Address hands out the next unused receive address.
func (s *Service) Address(h *Handle) (*AddressResult, error) {
	addr, index, err := h.tracker.NextAddress(h.pair, wallet.ReceiveBranch)
	s.metrics.RecordWalletOp("receive", err)
	if err != nil {
		return nil, err
	}
	return &AddressResult{
		Address: addr.EncodeAddress(),
		Index:   index,
		Path:    h.pair.Receive.ChildPath(index).String(),
	}, nil
}

// Balance returns the balance as of the last sync.
func (s *Service) Balance(h *Handle) utxostore.Balance {
	return h.tracker.Balance()
}

// UTXOs lists the tracked outputs, flagging those spent by a
// transaction that has not yet been seen by a sync.
func (s *Service) UTXOs(h *Handle) []UTXOView {
	spent := make(map[string]bool)
	for _, ops := range h.tracker.Pending() {
		for _, op := range ops {
			spent[op.String()] = true
		}
	}

	utxos := h.tracker.UTXOs()
	views := make([]UTXOView, 0, len(utxos))
	for _, u := range utxos {
		views = append(views, UTXOView{
			UTXO:    u,
			Path:    h.pair.Branch(u.Branch).ChildPath(u.Index).String(),
			Pending: spent[u.OutPoint.String()],
		})
	}
	return views
}

// ReleasePending makes the inputs of an unconfirmed transaction
// spendable again.
func (s *Service) ReleasePending(h *Handle, txid string) error {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"txid":   txid,
			"reason": "not a transaction id",
		})
	}
	err = h.tracker.ReleasePending(*hash)
	s.metrics.RecordWalletOp("release", err)
	return err
}
