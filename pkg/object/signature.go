package object

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// CommitSignaturePrefix tags the commit signature scheme in use. The full
// signature field is "sshsig-v1:<sig-format>:<pubkey-b64>:<sig-b64>", which
// is self-contained: verification needs no external key lookup.
const CommitSignaturePrefix = "sshsig-v1"

// ErrNoSignature reports a verification attempt on an unsigned commit.
var ErrNoSignature = errors.New("commit is not signed")

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit. The payload intentionally excludes the signature field itself.
func CommitSigningPayload(c *CommitObj) []byte {
	if c == nil {
		return nil
	}
	copyCommit := *c
	copyCommit.Signature = ""
	return MarshalCommit(&copyCommit)
}

// EncodeCommitSignature renders an SSH signature and its public key into the
// commit signature field format.
func EncodeCommitSignature(sig *ssh.Signature, pub ssh.PublicKey) string {
	pubB64 := base64.StdEncoding.EncodeToString(pub.Marshal())
	sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
	return fmt.Sprintf("%s:%s:%s:%s", CommitSignaturePrefix, sig.Format, pubB64, sigB64)
}

// VerifyCommitSignature checks the commit's embedded SSH signature against
// the commit's signing payload. On success it returns the SHA-256
// fingerprint of the signing key.
func VerifyCommitSignature(c *CommitObj) (string, error) {
	if c == nil || strings.TrimSpace(c.Signature) == "" {
		return "", ErrNoSignature
	}

	parts := strings.SplitN(c.Signature, ":", 4)
	if len(parts) != 4 || parts[0] != CommitSignaturePrefix {
		return "", fmt.Errorf("malformed commit signature %q", c.Signature)
	}

	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode signing key: %w", err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return "", fmt.Errorf("parse signing key: %w", err)
	}

	sigBlob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}

	sig := &ssh.Signature{Format: parts[1], Blob: sigBlob}
	if err := pub.Verify(CommitSigningPayload(c), sig); err != nil {
		return "", fmt.Errorf("signature does not match commit payload: %w", err)
	}
	return ssh.FingerprintSHA256(pub), nil
}
