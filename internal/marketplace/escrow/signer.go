package escrow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the custodial signing capability: given a participant id it
// returns that participant's wallet address and a function that signs
// transactions on their behalf. The marketplace never sees raw key material.
type Signer interface {
	SignerFor(ctx context.Context, agentID string) (common.Address, SignFn, error)
}

// SignFn signs a transaction for the given chain.
type SignFn func(tx *types.Transaction) (*types.Transaction, error)

// LocalSigner is a development implementation of Signer holding hex-encoded
// ECDSA keys in memory, one per agent id.
type LocalSigner struct {
	chainID *big.Int
	mu      sync.RWMutex
	keys    map[string]*ecdsa.PrivateKey
}

var _ Signer = (*LocalSigner)(nil)

func NewLocalSigner(chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		chainID: chainID,
		keys:    make(map[string]*ecdsa.PrivateKey),
	}
}

// AddKey registers an agent's hex private key.
func (s *LocalSigner) AddKey(agentID, hexKey string) error {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key for agent %s: %w", agentID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[agentID] = key
	return nil
}

func (s *LocalSigner) SignerFor(ctx context.Context, agentID string) (common.Address, SignFn, error) {
	s.mu.RLock()
	key, ok := s.keys[agentID]
	s.mu.RUnlock()
	if !ok {
		return common.Address{}, nil, fmt.Errorf("no signing key for agent %s", agentID)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	signer := types.LatestSignerForChainID(s.chainID)
	sign := func(tx *types.Transaction) (*types.Transaction, error) {
		return types.SignTx(tx, signer, key)
	}
	return addr, sign, nil
}
