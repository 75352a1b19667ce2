// Package nostrsign implements the Event Signer (C1): canonical event
// serialization, the SHA-256 event-id rule, and BIP-340 Schnorr signing
// over secp256k1.
package nostrsign

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nostrmigrate/corepipe/internal/model"
)

// Serialize produces the canonical JSON array
// [0, pubkey, created_at, kind, tags, content] that the event id is hashed
// over: no insignificant whitespace, minimal separators, Unicode
// preserved (HTML-unsafe characters are not escaped), array element order
// fixed as given. Any deviation produces a different id.
func Serialize(pubkeyHex string, createdAt int64, kind int, tags [][]string, content string) ([]byte, error) {
	arr := []interface{}{0, pubkeyHex, createdAt, kind, tags, content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("nostrsign: serialize: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; the id hash is over
	// the array bytes alone.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EventID returns the lowercase-hex SHA-256 digest of serialized.
func EventID(serialized []byte) string {
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// BuildUnsigned fills in Kind/PubKey/CreatedAt/Tags/Content and computes ID,
// leaving Sig empty.
func BuildUnsigned(kind int, pubkeyHex string, createdAt int64, tags [][]string, content string) (model.Event, error) {
	if tags == nil {
		tags = [][]string{}
	}
	ser, err := Serialize(pubkeyHex, createdAt, kind, tags, content)
	if err != nil {
		return model.Event{}, err
	}
	return model.Event{
		Kind:      kind,
		PubKey:    pubkeyHex,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   content,
		ID:        EventID(ser),
	}, nil
}
