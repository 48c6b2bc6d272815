package pdp

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Checksum digests the policy's decision-relevant fields. Metadata like
// name, description and timestamps stay out so cosmetic edits do not break
// signatures.
func (p *Policy) Checksum() string {
	rules := make([]string, 0, len(p.Rules))
	for _, r := range p.Rules {
		rules = append(rules, r.String())
	}
	data, _ := json.Marshal(struct {
		Effect   Effect
		Rules    []string
		Priority int
	}{
		Effect:   p.Effect,
		Rules:    rules,
		Priority: p.Priority,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SignedPolicyBundle carries policies plus a per-policy ed25519 signature
// over each policy's id and checksum, for distributing policy sets across
// trust boundaries.
type SignedPolicyBundle struct {
	Policies   []*Policy         `json:"policies"`
	Signatures map[string]string `json:"signatures"`
	Meta       map[string]any    `json:"meta,omitempty"`
}

func signingPayload(p *Policy) ([]byte, error) {
	return json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       p.ID,
		Checksum: p.Checksum(),
	})
}

// SignPolicy returns the base64 ed25519 signature for one policy.
func SignPolicy(priv ed25519.PrivateKey, p *Policy) (string, error) {
	data, err := signingPayload(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data)), nil
}

// VerifyPolicySignature checks one policy against its signature.
func VerifyPolicySignature(pub ed25519.PublicKey, p *Policy, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	data, err := signingPayload(p)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// SignBundle signs every policy with priv.
func SignBundle(priv ed25519.PrivateKey, policies []*Policy) (*SignedPolicyBundle, error) {
	b := &SignedPolicyBundle{Policies: policies, Signatures: make(map[string]string, len(policies))}
	for _, p := range policies {
		sig, err := SignPolicy(priv, p)
		if err != nil {
			return nil, err
		}
		b.Signatures[p.ID] = sig
	}
	return b, nil
}

// VerifyBundle checks every policy in the bundle. A single missing or bad
// signature fails the whole bundle.
func VerifyBundle(pub ed25519.PublicKey, b *SignedPolicyBundle) error {
	for _, p := range b.Policies {
		sig, ok := b.Signatures[p.ID]
		if !ok {
			return fmt.Errorf("missing signature for policy %s", p.ID)
		}
		valid, err := VerifyPolicySignature(pub, p, sig)
		if err != nil {
			return fmt.Errorf("verify policy %s: %w", p.ID, err)
		}
		if !valid {
			return fmt.Errorf("bad signature for policy %s", p.ID)
		}
	}
	return nil
}

// ApplySignedBundle verifies and upserts a bundle's policies. Nothing from
// an unverifiable bundle is applied.
func (e *Engine) ApplySignedBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedPolicyBundle) error {
	if err := VerifyBundle(pub, bundle); err != nil {
		return fmt.Errorf("bundle verification failed: %w", err)
	}
	for _, p := range bundle.Policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid policy %s: %w", p.ID, err)
		}
	}
	for _, p := range bundle.Policies {
		if _, err := e.policyStore.GetPolicy(ctx, p.ID); err != nil {
			if err := e.AddPolicy(ctx, p); err != nil {
				return err
			}
			continue
		}
		if err := e.UpdatePolicy(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
