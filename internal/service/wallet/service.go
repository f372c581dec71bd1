package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/satchel/internal/descriptor"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/storage"
	"github.com/mrz1836/satchel/internal/txbuilder"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Service provides wallet operations without CLI dependencies.
type Service struct {
	storage StorageProvider
	store   storage.KeyValueStore
	config  ConfigProvider
	logger  LogWriter
	metrics *metrics.Metrics
}

// Config contains dependencies for creating a wallet service.
type Config struct {
	Storage StorageProvider
	Store   storage.KeyValueStore
	Config  ConfigProvider
	Logger  LogWriter
	Metrics *metrics.Metrics
}

// NewService creates a new wallet service instance.
func NewService(cfg *Config) *Service {
	s := &Service{
		storage: cfg.Storage,
		store:   cfg.Store,
		config:  cfg.Config,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Handle is an opened wallet. A handle opened without the password is
// watch-only: it can sync and hand out addresses but not sign.
type Handle struct {
	Wallet *wallet.Wallet

	net     *chaincfg.Params
	pair    *descriptor.Pair
	tracker *utxostore.Tracker
	builder *txbuilder.Builder
}

// Network returns the chain parameters of the wallet.
func (h *Handle) Network() *chaincfg.Params {
	return h.net
}

// WatchOnly reports whether the handle lacks private keys.
func (h *Handle) WatchOnly() bool {
	return !h.pair.Receive.HasPrivate()
}

// Descriptors returns the public receive and change descriptors.
func (h *Handle) Descriptors() (receive, change string) {
	return h.pair.Receive.Public(), h.pair.Change.Public()
}

// FirstAddress returns receive address 0 without handing it out.
func (h *Handle) FirstAddress() (string, error) {
	addr, err := h.pair.Receive.AddressAt(0)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// PrivateDescriptors returns the descriptors with their private keys.
func (h *Handle) PrivateDescriptors() (receive, change string, err error) {
	if h.WatchOnly() {
		return "", "", walleterr.WithSuggestion(walleterr.ErrMissingKey, "open the wallet with its password")
	}
	return h.pair.Receive.String(), h.pair.Change.String(), nil
}

// Close aborts any unfinished build and wipes key material.
func (h *Handle) Close() {
	h.builder.Abort()
	h.pair.Zero()
}

// ValidateExists checks if a wallet exists in storage.
func (s *Service) ValidateExists(name string) error {
	exists, err := s.storage.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return walleterr.WithSuggestion(
			walleterr.WithDetails(walleterr.ErrWalletNotFound, map[string]string{"name": name}),
			fmt.Sprintf("wallet '%s' not found. List wallets with: satchel wallet list", name),
		)
	}
	return nil
}

// List returns all wallet names from storage.
func (s *Service) List() ([]string, error) {
	return s.storage.List()
}

// LoadMetadata loads wallet metadata without requiring the password.
func (s *Service) LoadMetadata(name string) (*wallet.Wallet, error) {
	if err := s.ValidateExists(name); err != nil {
		return nil, err
	}
	return s.storage.LoadMetadata(name)
}

// Create generates or restores a wallet, encrypts its seed with the
// password and returns an open handle.
func (s *Service) Create(ctx context.Context, req CreateRequest) (result *CreateResult, err error) {
	defer func() { s.metrics.RecordWalletOp("create", err) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if err = wallet.ValidateWalletName(req.Name); err != nil {
		if suggested := wallet.SuggestWalletName(req.Name); suggested != "" && suggested != req.Name {
			return nil, walleterr.WithSuggestion(err, fmt.Sprintf("try '%s'", suggested))
		}
		return nil, err
	}
	exists, err := s.storage.Exists(req.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, walleterr.WithDetails(walleterr.ErrWalletExists, map[string]string{"name": req.Name})
	}
	if len(req.Password) == 0 {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"reason": "password must not be empty",
		})
	}

	net, err := wallet.ParseNetwork(req.Network)
	if err != nil {
		return nil, err
	}

	mnemonic, generated := req.Mnemonic, false
	if mnemonic == "" {
		words := req.WordCount
		if words == 0 {
			words = DefaultWordCount
		}
		if mnemonic, err = wallet.GenerateMnemonic(words); err != nil {
			return nil, err
		}
		generated = true
	} else {
		mnemonic = wallet.NormalizeMnemonicInput(mnemonic)
		if err = wallet.ValidateMnemonic(mnemonic); err != nil {
			return nil, err
		}
	}

	account := req.Account
	if account == 0 && s.config != nil {
		account = s.config.GetWallet().Account
	}

	master, err := wallet.NewMasterKey(mnemonic, req.Passphrase, net)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	fp, err := master.Fingerprint()
	if err != nil {
		return nil, err
	}
	pair, err := descriptor.NewPair(master, account, net)
	if err != nil {
		return nil, err
	}

	w := &wallet.Wallet{
		Name:              req.Name,
		ID:                string(pair.ID()),
		Network:           wallet.NetworkName(net),
		Account:           account,
		MasterFingerprint: fp.String(),
		ReceiveDescriptor: pair.Receive.Public(),
		ChangeDescriptor:  pair.Change.Public(),
		CreatedAt:         time.Now().UTC(),
		Version:           wallet.FileVersion,
	}

	secret := wallet.NewSecret(mnemonic, req.Passphrase)
	defer secret.Destroy()
	if err = s.storage.Save(w, secret, req.Password); err != nil {
		pair.Zero()
		return nil, err
	}

	h, err := s.newHandle(w, net, pair)
	if err != nil {
		pair.Zero()
		return nil, err
	}
	s.logger.Debug("created wallet %s (%s) on %s", w.Name, descriptor.WalletID(w.ID).Short(), w.Network)

	result = &CreateResult{Handle: h}
	if generated {
		result.Mnemonic = mnemonic
	}
	return result, nil
}

// Open decrypts a wallet and returns a handle able to sign.
func (s *Service) Open(name string, password []byte) (*Handle, error) {
	if err := s.ValidateExists(name); err != nil {
		return nil, err
	}
	w, secret, err := s.storage.Load(name, password)
	if err != nil {
		return nil, err
	}
	defer secret.Destroy()

	net, err := wallet.ParseNetwork(w.Network)
	if err != nil {
		return nil, err
	}
	master, err := wallet.NewMasterKey(secret.Mnemonic(), secret.Passphrase(), net)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	pair, err := descriptor.NewPair(master, w.Account, net)
	if err != nil {
		return nil, err
	}
	if err := checkIdentity(w, pair); err != nil {
		pair.Zero()
		return nil, err
	}

	h, err := s.newHandle(w, net, pair)
	if err != nil {
		pair.Zero()
		return nil, err
	}
	return h, nil
}

// OpenWatchOnly opens a wallet from its public descriptors.
func (s *Service) OpenWatchOnly(name string) (*Handle, error) {
	w, err := s.LoadMetadata(name)
	if err != nil {
		return nil, err
	}
	net, err := wallet.ParseNetwork(w.Network)
	if err != nil {
		return nil, err
	}
	pair, err := descriptor.ParsePair(w.ReceiveDescriptor, w.ChangeDescriptor, net)
	if err != nil {
		return nil, err
	}
	if err := checkIdentity(w, pair); err != nil {
		return nil, err
	}
	return s.newHandle(w, net, pair)
}

func checkIdentity(w *wallet.Wallet, pair *descriptor.Pair) error {
	if string(pair.ID()) == w.ID {
		return nil
	}
	return walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
		"name":   w.Name,
		"reason": "wallet file does not match its descriptors",
	})
}

func (s *Service) newHandle(w *wallet.Wallet, net *chaincfg.Params, pair *descriptor.Pair) (*Handle, error) {
	opts := utxostore.Options{Logger: s.logger}
	if s.config != nil {
		opts.GapLimit = s.config.GetWallet().GapLimit
	}
	tracker, err := utxostore.Open(w.ID, s.store, opts)
	if err != nil {
		return nil, err
	}
	return &Handle{
		Wallet:  w,
		net:     net,
		pair:    pair,
		tracker: tracker,
		builder: txbuilder.New(net, tracker),
	}, nil
}
