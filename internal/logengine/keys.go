// Package logengine is the default implementation of the log-engine and
// key-derivation collaborators the core treats as external per spec §1/§6:
// an append-only, sequence-numbered block log over an injected
// blockstore.Factory, plus Ed25519 key generation and a BLAKE2b-256
// discovery-key derivation. Per-block signing/verification is deliberately
// not implemented: spec §1 lists "no block-level authentication" as a
// non-goal, so the cryptographic surface here is limited to feed identity
// (key pairs and their discovery key), not per-append authenticity.
package logengine

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/blake2b"
)

// discoveryKeyDomain separates the discovery-key hash from any other use
// of BLAKE2b over a raw public key, so a feed's public key and its
// discovery key can never collide by construction.
var discoveryKeyDomain = []byte("feedstore/discovery-key")

// DiscoveryKey derives a feed's discoveryKey deterministically from its
// public key (spec §3).
func DiscoveryKey(key []byte) []byte {
	h, err := blake2b.New256(discoveryKeyDomain)
	if err != nil {
		// blake2b.New256 only errors when the key exceeds 64 bytes; the
		// domain constant above is well under that, so this is
		// unreachable, but panicking here rather than silently returning
		// a zero-length key keeps a future domain-string typo loud.
		panic("logengine: invalid discovery key domain: " + err.Error())
	}
	h.Write(key)
	return h.Sum(nil)
}

// GenerateKeyPair returns a fresh Ed25519 (key, secretKey) pair for a feed
// opened without an explicit key.
func GenerateKeyPair() (key, secretKey []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return []byte(pub), []byte(priv), nil
}
