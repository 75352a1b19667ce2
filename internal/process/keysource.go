package process

import (
	"context"
	"fmt"

	"github.com/nostrmigrate/corepipe/internal/migrateerrors"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/nostrsign"
)

// ExternalSignFunc signs on behalf of a Migration whose key never enters
// the Work Store (model.ExternalSigner). It is supplied by whatever
// registered the Migration, not derived from anything persisted here.
type ExternalSignFunc func(ctx context.Context, kind int, createdAt int64, tags [][]string, content string) (model.Event, error)

// KeySource is the signing capability for one Migration. Processors depend
// on this capability rather than reading secret_key out of storage
// directly, per the KeySource redesign in spec.md §9 (replacing the
// source's three divergent key-derivation code paths: persistent key in
// row, temp key per proposal, deterministic key per gift).
type KeySource interface {
	PubKey() string
	Sign(ctx context.Context, kind int, createdAt int64, tags [][]string, content string) (model.Event, error)
}

type storedKeySource struct {
	pubkey, secret string
	signer         *nostrsign.Signer
}

func (k storedKeySource) PubKey() string { return k.pubkey }

func (k storedKeySource) Sign(ctx context.Context, kind int, createdAt int64, tags [][]string, content string) (model.Event, error) {
	return k.signer.Sign(kind, k.pubkey, createdAt, tags, content, k.secret)
}

type externalKeySource struct {
	pubkey string
	signFn ExternalSignFunc
}

func (k externalKeySource) PubKey() string { return k.pubkey }

func (k externalKeySource) Sign(ctx context.Context, kind int, createdAt int64, tags [][]string, content string) (model.Event, error) {
	return k.signFn(ctx, kind, createdAt, tags, content)
}

// KeySourceResolver produces the signing capability for a Migration.
// StoredKey and EphemeralKey both resolve against the secret persisted on
// the Migration row; they differ only in Migration lifecycle (an
// EphemeralKey Migration has no external owner expecting the key back),
// not in how signing happens.
type KeySourceResolver struct {
	signer    *nostrsign.Signer
	externals map[string]ExternalSignFunc
}

// NewKeySourceResolver builds a resolver. Register external signers with
// RegisterExternalSigner before resolving a model.ExternalSigner Migration.
func NewKeySourceResolver(signer *nostrsign.Signer) *KeySourceResolver {
	return &KeySourceResolver{signer: signer, externals: map[string]ExternalSignFunc{}}
}

// RegisterExternalSigner wires migrationID's external signing function,
// for Migrations created with KeySource == model.ExternalSigner.
func (r *KeySourceResolver) RegisterExternalSigner(migrationID string, fn ExternalSignFunc) {
	r.externals[migrationID] = fn
}

// Resolve returns the KeySource for m.
func (r *KeySourceResolver) Resolve(m model.Migration) (KeySource, error) {
	switch m.KeySource {
	case model.StoredKey, model.EphemeralKey:
		if m.SecretKey == "" || m.SecretKey == model.ScrubbedSecretKey {
			return nil, fmt.Errorf("process: migration %s has no usable secret key: %w", m.ID, migrateerrors.ErrFatalUnit)
		}
		return storedKeySource{pubkey: m.PublicKey, secret: m.SecretKey, signer: r.signer}, nil
	case model.ExternalSigner:
		fn, ok := r.externals[m.ID]
		if !ok {
			return nil, fmt.Errorf("process: migration %s has no registered external signer: %w", m.ID, migrateerrors.ErrFatalUnit)
		}
		return externalKeySource{pubkey: m.PublicKey, signFn: fn}, nil
	default:
		return nil, fmt.Errorf("process: migration %s has unknown key source %d", m.ID, m.KeySource)
	}
}
