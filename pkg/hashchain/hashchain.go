// Package hashchain provides the hashing primitives for the custody ledger:
// deterministic payload digests, per-shipment genesis hashes, chain links,
// Merkle roots, and opaque transaction identifiers.
//
// All digests are hex-encoded SHA-256. Payload hashing serialises the value
// to canonical JSON (object keys sorted) so the digest is independent of map
// iteration order and of which process computed it.
package hashchain

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the hex SHA-256 digest of the canonical JSON form of payload.
// The same payload always yields the same digest, regardless of map ordering.
func Hash(payload any) (string, error) {
	data, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalise payload: %w", err)
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// GenesisHash derives the deterministic "previous hash" for the first event
// of a shipment's chain.
func GenesisHash(shipmentID string) string {
	return HashBytes([]byte("genesis_" + shipmentID))
}

// ChainHash combines a previous digest with a payload digest into a single
// link digest: sha256(prevHash + sha256(payload)). The ledger's event chain
// uses direct previous-hash linking instead; ChainHash is provided as a
// general primitive for external anchoring.
func ChainHash(prevHash string, payload any) (string, error) {
	payloadHash, err := Hash(payload)
	if err != nil {
		return "", err
	}
	return HashBytes([]byte(prevHash + payloadHash)), nil
}

// MerkleRoot folds a list of hex digests into a single root by hashing
// adjacent pairs until one digest remains. When a level has an odd number of
// digests the last one is paired with itself. Returns "" for an empty list
// and the digest itself for a single-element list.
func MerkleRoot(digests []string) string {
	if len(digests) == 0 {
		return ""
	}
	level := make([][]byte, 0, len(digests))
	for _, d := range digests {
		b, err := hex.DecodeString(d)
		if err != nil {
			// Non-hex input cannot participate in a binary tree; hash the
			// raw string so the root is still deterministic.
			sum := sha256.Sum256([]byte(d))
			b = sum[:]
		}
		level = append(level, b)
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			h := sha256.New()
			h.Write(left)
			h.Write(right)
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}

// TransactionID generates a fresh collision-resistant identifier for a
// recorded event. It has no integrity role in the chain; it simulates the
// transaction id an external ledger would assign.
func TransactionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("hashchain: read random bytes: %v", err))
	}
	return HashBytes(buf)
}

// canonicalJSON encodes v with deterministic object key ordering. The value
// is round-tripped through encoding/json so struct fields become a map, which
// encoding/json always marshals with sorted keys.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(decoded); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
