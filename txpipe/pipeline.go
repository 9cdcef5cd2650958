package txpipe

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the wallet session a pipeline signs and broadcasts
// through.
type Signer interface {
	SignTransaction(ctx context.Context, txArgs any) ([]byte, error)
	SendRawTransaction(ctx context.Context, rawTx string) (common.Hash, error)
	EnsureSession(ctx context.Context) ([]common.Address, uint64, error)
}

// Pipeline drives a built transaction through the wallet: resolve
// missing fields, sign remotely, encode, optionally broadcast.
type Pipeline struct {
	signer Signer
}

func New(signer Signer) *Pipeline {
	return &Pipeline{signer: signer}
}

// Sign completes p against the session and endpoint and returns the
// RLP-encoded signed transaction. A zero from address falls back to
// the session's first account; the chain id falls back to the
// session's when the caller left it unset.
func (pl *Pipeline) Sign(ctx context.Context, endpoint string, from common.Address, p *TxParams) ([]byte, error) {
	accounts, chainID, err := pl.signer.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}
	if from == (common.Address{}) {
		if len(accounts) == 0 {
			return nil, fmt.Errorf("session has no accounts")
		}
		from = accounts[0]
	}

	if p.ChainID == nil && chainID != 0 {
		p.ChainID = &chainID
	}
	if err := Resolve(ctx, endpoint, from, p); err != nil {
		return nil, err
	}

	tx, err := p.Transaction()
	if err != nil {
		return nil, err
	}
	args, err := p.CallArgs(from)
	if err != nil {
		return nil, err
	}

	sig, err := pl.signer.SignTransaction(ctx, args)
	if err != nil {
		return nil, err
	}
	signed, err := attachSignature(tx, *p.ChainID, sig)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

// Send signs p and broadcasts the exact bytes that were signed. The
// hash returned by the node must match the local hash of the signed
// transaction or the broadcast is reported as ErrHashMismatch.
func (pl *Pipeline) Send(ctx context.Context, endpoint string, from common.Address, p *TxParams) (common.Hash, error) {
	raw, err := pl.Sign(ctx, endpoint, from, p)
	if err != nil {
		return common.Hash{}, err
	}

	var signed types.Transaction
	if err := signed.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("decode signed transaction: %w", err)
	}

	hash, err := pl.signer.SendRawTransaction(ctx, hexutil.Encode(raw))
	if err != nil {
		return common.Hash{}, err
	}
	if !bytes.Equal(hash.Bytes(), signed.Hash().Bytes()) {
		return common.Hash{}, fmt.Errorf("%w: node %s, local %s", ErrHashMismatch, hash, signed.Hash())
	}
	return hash, nil
}

// attachSignature folds a wallet 65-byte signature into the typed
// transaction. Wallets return the recovery id as 27 or 28; typed
// transactions want 0 or 1.
func attachSignature(tx *types.Transaction, chainID uint64, sig []byte) (*types.Transaction, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[crypto.RecoveryIDOffset] >= 27 {
		norm[crypto.RecoveryIDOffset] -= 27
	}

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	return tx.WithSignature(signer, norm)
}
