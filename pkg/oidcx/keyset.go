package oidcx

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// JWK is a public key in JSON Web Key format (RFC 7517), limited to the
// RSA fields the provider's signing keys use.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`

	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// RemoteKeySet fetches and caches the provider's JWKS document. A lookup
// for an unknown kid triggers at most one refetch so key rotation at the
// provider is picked up without restarting the gateway.
type RemoteKeySet struct {
	url    string
	client *http.Client
	minGap time.Duration // minimum time between forced refetches

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewRemoteKeySet creates a key set backed by the JWKS document at url,
// e.g. "https://tenant.auth0.com/.well-known/jwks.json".
func NewRemoteKeySet(url string) *RemoteKeySet {
	return &RemoteKeySet{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		minGap: time.Minute,
		keys:   map[string]*rsa.PublicKey{},
	}
}

// Get returns the RSA public key for kid, refetching the JWKS once if the
// kid is not cached. Returns ErrKeyNotFound when the provider does not
// publish the key.
func (s *RemoteKeySet) Get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	pub, ok := s.keys[kid]
	fetchedAt := s.fetchedAt
	s.mu.RUnlock()
	if ok {
		return pub, nil
	}

	// Unknown kid: refresh unless we just did. The gap stops a flood of
	// bogus kids from hammering the provider.
	if time.Since(fetchedAt) >= s.minGap {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}

		s.mu.RLock()
		pub, ok = s.keys[kid]
		s.mu.RUnlock()
		if ok {
			return pub, nil
		}
	}

	return nil, ErrKeyNotFound
}

// refresh fetches the JWKS document and replaces the cached key map.
func (s *RemoteKeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("oidcx: build jwks request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("oidcx: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oidcx: fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var doc JWKS
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("oidcx: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			// Skip unparsable entries, the rest of the set is still usable
			continue
		}
		keys[k.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return nil
}

// rsaPublicKey decodes the base64url modulus and exponent into a key.
func (k JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("oidcx: decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("oidcx: decode exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("oidcx: exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
