// Package signer provides Ed25519 signing and verification for editorial
// actions in the ledger.
//
// Every signed action uses the event hash's hex string — not its 32 raw
// bytes — as the signed message. This is a load-bearing compatibility
// detail: verifiers in any language must reproduce it exactly, so it is
// encoded here as the only message shape the package's event-oriented
// helpers will produce or accept.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Keypair is a base64-encoded Ed25519 key pair.
type Keypair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeypair creates a new Ed25519 key pair using a cryptographic
// RNG and returns it base64-encoded.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("signer: generate keypair: %w", err)
	}
	return Keypair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// Sign signs the UTF-8 bytes of message with privateKeyB64 and returns a
// base64-encoded signature.
func Sign(message string, privateKeyB64 string) (string, error) {
	priv, err := decodePrivateKey(privateKeyB64)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, []byte(message))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signatureB64 is a valid Ed25519 signature over
// the UTF-8 bytes of message under publicKeyB64. Any decoding failure is
// treated as an invalid signature (returns false, not an error) so
// callers can use it directly as a boolean predicate.
func Verify(message string, signatureB64 string, publicKeyB64 string) bool {
	pub, err := decodePublicKey(publicKeyB64)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}

// SignEvent signs an event hash. This is the entry point ledger code
// should use: it makes explicit that the message is the hash's hex
// string, not its decoded bytes.
func SignEvent(eventHash string, privateKeyB64 string) (string, error) {
	return Sign(eventHash, privateKeyB64)
}

// VerifyEvent verifies a signature over an event hash.
func VerifyEvent(eventHash string, signatureB64 string, publicKeyB64 string) bool {
	return Verify(eventHash, signatureB64, publicKeyB64)
}

func decodePrivateKey(b64 string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("signer: decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func decodePublicKey(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("signer: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signer: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// RoundTrip signs and verifies a throwaway message with kp, confirming
// the pair is internally consistent. Used at startup to validate a
// configured system keypair before it is trusted for bootstrap actions.
func RoundTrip(kp Keypair) error {
	const probe = "accountabilityme-keypair-roundtrip-probe"
	sig, err := Sign(probe, kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("signer: roundtrip sign: %w", err)
	}
	if !Verify(probe, sig, kp.PublicKey) {
		return fmt.Errorf("signer: roundtrip verify failed: private and public key do not correspond")
	}
	return nil
}
