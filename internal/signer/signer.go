// Package signer implements the authority identity and signing interface
// the engine assumes but does not itself specify the primitive for: a
// deterministic signature scheme with public-key-derived authority
// identities. This package backs that assumption with
// real secp256k1 signatures via go-ethereum's crypto package, in place of
// the placeholder P-256 stand-in ungrounded code elsewhere in this lineage
// used.
package signer

import (
	"crypto/ecdsa"
	"errors"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AuthorityId is the opaque public key of the signing scheme. Equality is
// byte-wise; ordering in an AuthoritySet is by insertion position, not by
// key value.
type AuthorityId [33]byte // compressed secp256k1 public key

// Signer produces signatures over arbitrary byte strings and exposes the
// AuthorityId it signs for. Implementations must be safe for concurrent
// use — the authorship worker is safe to clone and shared across slots.
type Signer interface {
	AuthorityId() AuthorityId
	Sign(msg []byte) (signature []byte, err error)
}

// Verify checks that signature is a valid signature over msg by author.
func Verify(author AuthorityId, msg, signature []byte) bool {
	pub, err := gethcrypto.DecompressPubkey(author[:])
	if err != nil {
		return false
	}
	if len(signature) != 65 {
		return false
	}
	hash := gethcrypto.Keccak256(msg)
	// VerifySignature expects a 64-byte signature (no recovery id).
	return gethcrypto.VerifySignature(gethcrypto.FromECDSAPub(pub), hash, signature[:64])
}

// ECDSASigner is a Signer backed by a local ecdsa.PrivateKey.
type ECDSASigner struct {
	priv *ecdsa.PrivateKey
	id   AuthorityId
}

// NewECDSASigner wraps an existing secp256k1 private key as a Signer.
func NewECDSASigner(priv *ecdsa.PrivateKey) (*ECDSASigner, error) {
	if priv == nil {
		return nil, errors.New("signer: nil private key")
	}
	compressed := gethcrypto.CompressPubkey(&priv.PublicKey)
	var id AuthorityId
	if len(compressed) != len(id) {
		return nil, errors.New("signer: unexpected public key length")
	}
	copy(id[:], compressed)
	return &ECDSASigner{priv: priv, id: id}, nil
}

// GenerateSigner creates a new ECDSASigner with a freshly generated key,
// for tests and local development nodes.
func GenerateSigner() (*ECDSASigner, error) {
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewECDSASigner(priv)
}

// AuthorityId returns the signer's public key.
func (s *ECDSASigner) AuthorityId() AuthorityId { return s.id }

// Sign signs the Keccak-256 hash of msg, returning a 65-byte
// [R || S || V] signature.
func (s *ECDSASigner) Sign(msg []byte) ([]byte, error) {
	hash := gethcrypto.Keccak256(msg)
	return gethcrypto.Sign(hash, s.priv)
}
