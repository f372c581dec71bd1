// Package wallet ties keys, the UTXO tracker and the transaction builder
// into the operations the CLI exposes, without CLI dependencies.
package wallet

import (
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/wallet"
)

// ConfigProvider provides the wallet and fee settings.
type ConfigProvider interface {
	GetWallet() config.WalletConfig
	GetFees() config.FeesConfig
}

// StorageProvider provides wallet file persistence.
type StorageProvider interface {
	Save(w *wallet.Wallet, secret *wallet.Secret, password []byte) error
	Load(name string, password []byte) (*wallet.Wallet, *wallet.Secret, error)
	LoadMetadata(name string) (*wallet.Wallet, error)
	Exists(name string) (bool, error)
	List() ([]string, error)
}

// LogWriter provides logging capabilities.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
