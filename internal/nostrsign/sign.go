package nostrsign

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/nostrmigrate/corepipe/internal/migrateerrors"
	"github.com/nostrmigrate/corepipe/internal/model"
)

// Signer signs events under a caller-supplied secp256k1 key. It carries no
// mutable state and is safe to call from multiple goroutines at once.
type Signer struct{}

// NewSigner returns a stateless Signer.
func NewSigner() *Signer { return &Signer{} }

// Sign builds the canonical serialization, computes the event id, and
// produces a BIP-340 Schnorr signature over it under secretKeyHex. The
// curve arithmetic and nonce generation (aux/nonce/challenge tagged
// hashes, negating the secret and nonce scalars whose points have odd Y)
// are delegated to btcec/v2/schnorr rather than re-derived by hand here;
// schnorr.Sign already implements the BIP-340 derivation this event-id
// rule assumes.
func (s *Signer) Sign(kind int, pubkeyHex string, createdAt int64, tags [][]string, content string, secretKeyHex string) (model.Event, error) {
	ev, err := BuildUnsigned(kind, pubkeyHex, createdAt, tags, content)
	if err != nil {
		return model.Event{}, err
	}

	skBytes, err := hex.DecodeString(secretKeyHex)
	if err != nil || len(skBytes) != 32 {
		return model.Event{}, fmt.Errorf("nostrsign: sign: invalid secret key: %w", migrateerrors.ErrFatalUnit)
	}
	priv, pub := btcec.PrivKeyFromBytes(skBytes)
	_ = pub

	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil || len(idBytes) != 32 {
		return model.Event{}, fmt.Errorf("nostrsign: sign: bad event id: %w", err)
	}

	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		// schnorr.Sign fails only on the degenerate k==0 nonce case,
		// which asks the caller to retry signing (spec.md §4.1).
		return model.Event{}, fmt.Errorf("nostrsign: sign: %w: %v", migrateerrors.ErrNonceDegenerate, err)
	}

	ev.Sig = hex.EncodeToString(sig.Serialize())
	return ev, nil
}

// Verify checks that sig is a valid BIP-340 Schnorr signature over idHex
// under pubkeyHex.
func Verify(pubkeyHex, idHex, sigHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false, fmt.Errorf("nostrsign: verify: bad pubkey: %w", err)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("nostrsign: verify: parse pubkey: %w", err)
	}

	idBytes, err := hex.DecodeString(idHex)
	if err != nil || len(idBytes) != 32 {
		return false, fmt.Errorf("nostrsign: verify: bad event id")
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("nostrsign: verify: bad signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("nostrsign: verify: parse signature: %w", err)
	}

	return sig.Verify(idBytes, pub), nil
}
