// SPDX-License-Identifier: LGPL-3.0-or-later

// Package dhpool caches classic (finite-field) Diffie-Hellman
// parameters and a pool of pre-generated private keys, so that
// handshake latency is bounded by round-trip time rather than by the
// CPU cost of generating a fresh DH private key per connection.
//
// This mirrors the original service's DHParameterCache/
// OptimizedDHKeyExchange: one process-wide parameter set, generated
// once, backing a bounded, non-blocking queue of private keys.
package dhpool

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
)

// DefaultKeySize is the bit length of the shared prime. This is
// deliberately small for handshake latency — a protocol-level
// decision carried over from the original, not a cryptographic
// recommendation.
const DefaultKeySize = 512

// DefaultPoolSize is the number of private keys kept pre-generated.
const DefaultPoolSize = 128

// generator is fixed at 2, as the original always requested.
var generator = big.NewInt(2)

// Params is the shared (p, g) pair handed to every connecting client.
type Params struct {
	P *big.Int
	G *big.Int
}

// PrivateKey is a DH private exponent paired with the parameters it
// was generated against.
type PrivateKey struct {
	X *big.Int
	P *big.Int
}

// PublicBytes returns the minimal-length big-endian encoding of
// g^x mod p.
func (k PrivateKey) PublicBytes() []byte {
	y := new(big.Int).Exp(generator, k.X, k.P)
	return y.Bytes()
}

// Pool is a process-wide, lazily-initialized cache of DH parameters
// and private keys. The zero value is not usable; construct with New.
type Pool struct {
	keySize  int
	poolSize int

	initOnce sync.Once
	initErr  error
	params   Params

	mu    sync.Mutex
	queue []PrivateKey
}

// New returns a Pool configured for keySize-bit parameters and a
// pool of poolSize pre-generated private keys. Parameter generation
// is deferred to the first call that needs it.
func New(keySize, poolSize int) *Pool {
	if keySize <= 0 {
		keySize = DefaultKeySize
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Pool{keySize: keySize, poolSize: poolSize}
}

func (p *Pool) ensureInit() error {
	p.initOnce.Do(func() {
		prime, err := rand.Prime(rand.Reader, p.keySize)
		if err != nil {
			p.initErr = fmt.Errorf("dhpool: generate prime: %w", err)
			return
		}
		p.params = Params{P: prime, G: generator}

		keys := make([]PrivateKey, 0, p.poolSize)
		for i := 0; i < p.poolSize; i++ {
			priv, err := p.generatePrivate()
			if err != nil {
				p.initErr = fmt.Errorf("dhpool: generate private key: %w", err)
				return
			}
			keys = append(keys, priv)
		}

		p.mu.Lock()
		p.queue = keys
		p.mu.Unlock()
	})
	return p.initErr
}

func (p *Pool) generatePrivate() (PrivateKey, error) {
	// x is drawn uniformly from [1, p-2]; p-1 is excluded to keep the
	// exponent away from the group order's boundary.
	pMinus2 := new(big.Int).Sub(p.params.P, big.NewInt(2))
	x, err := rand.Int(rand.Reader, pMinus2)
	if err != nil {
		return PrivateKey{}, err
	}
	x.Add(x, big.NewInt(1))
	return PrivateKey{X: x, P: p.params.P}, nil
}

// Parameters returns the cached (p, g) pair, generating it on first
// call.
func (p *Pool) Parameters() (Params, error) {
	if err := p.ensureInit(); err != nil {
		return Params{}, err
	}
	return p.params, nil
}

// Take pops a private key from the pool without blocking; if the pool
// is empty it falls back to generating a fresh one against the cached
// parameters.
func (p *Pool) Take() (PrivateKey, error) {
	if err := p.ensureInit(); err != nil {
		return PrivateKey{}, err
	}

	p.mu.Lock()
	if n := len(p.queue); n > 0 {
		key := p.queue[n-1]
		p.queue = p.queue[:n-1]
		p.mu.Unlock()
		return key, nil
	}
	p.mu.Unlock()

	metrics.DHPoolExhaustions.Inc()
	return p.generatePrivate()
}

// Return pushes a private key back onto the pool for reuse; if the
// pool is already at capacity the key is dropped silently (best-effort
// recycling, never blocks).
func (p *Pool) Return(key PrivateKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.poolSize {
		return
	}
	p.queue = append(p.queue, key)
}

// Derive computes the shared DH secret between priv and the peer's
// public value, then folds it through BLAKE2b-512 truncated to 32
// bytes to produce a session key.
func Derive(priv PrivateKey, peerPublic *big.Int) ([]byte, error) {
	shared := new(big.Int).Exp(peerPublic, priv.X, priv.P)

	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, fmt.Errorf("dhpool: blake2b: %w", err)
	}
	if _, err := h.Write(shared.Bytes()); err != nil {
		return nil, fmt.Errorf("dhpool: blake2b write: %w", err)
	}
	sum := h.Sum(nil)
	return sum[:32], nil
}
