package wallet

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Network names accepted on the command line and in config files.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkSignet  = "signet"
	NetworkRegtest = "regtest"
)

// BIP44 coin types used in the account path.
const (
	CoinTypeBitcoin uint32 = 0
	CoinTypeTestnet uint32 = 1
)

// ParseNetwork maps a network name to its chain parameters.
func ParseNetwork(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NetworkMainnet, "main", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet, "test", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case NetworkSignet:
		return &chaincfg.SigNetParams, nil
	case NetworkRegtest, "simnet":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, walleterr.WithDetails(walleterr.ErrInvalidNetwork, map[string]string{"network": name})
	}
}

// NetworkName returns the canonical short name for params.
func NetworkName(params *chaincfg.Params) string {
	switch params.Net {
	case chaincfg.MainNetParams.Net:
		return NetworkMainnet
	case chaincfg.TestNet3Params.Net:
		return NetworkTestnet
	case chaincfg.SigNetParams.Net:
		return NetworkSignet
	case chaincfg.RegressionNetParams.Net:
		return NetworkRegtest
	default:
		return params.Name
	}
}

// CoinType returns the BIP44 coin type for params: 0 on mainnet, 1 on
// every test network.
func CoinType(params *chaincfg.Params) uint32 {
	if params.Net == chaincfg.MainNetParams.Net {
		return CoinTypeBitcoin
	}
	return CoinTypeTestnet
}
