// SPDX-License-Identifier: LGPL-3.0-or-later

package dhpool

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersGeneratedOnce(t *testing.T) {
	pool := New(64, 4)

	p1, err := pool.Parameters()
	require.NoError(t, err)
	p2, err := pool.Parameters()
	require.NoError(t, err)

	assert.Same(t, p1.P, p2.P)
	assert.Equal(t, int64(2), p2.G.Int64())
}

func TestTakeFallsBackWhenEmpty(t *testing.T) {
	pool := New(64, 2)
	_, err := pool.Parameters()
	require.NoError(t, err)

	// Drain the pool.
	k1, err := pool.Take()
	require.NoError(t, err)
	k2, err := pool.Take()
	require.NoError(t, err)
	assert.NotEqual(t, k1.X, k2.X)

	// Pool is empty now; Take must not block and must still succeed.
	k3, err := pool.Take()
	require.NoError(t, err)
	assert.NotNil(t, k3.X)
}

func TestReturnDropsWhenFull(t *testing.T) {
	pool := New(64, 1)
	_, err := pool.Parameters()
	require.NoError(t, err)

	k, err := pool.Take()
	require.NoError(t, err)
	pool.Return(k)
	pool.Return(k) // pool already has 1; this one is dropped silently

	assert.LessOrEqual(t, len(pool.queue), 1)
}

func TestDeriveIsSymmetric(t *testing.T) {
	pool := New(128, 2)
	params, err := pool.Parameters()
	require.NoError(t, err)

	a, err := pool.generatePrivate()
	require.NoError(t, err)
	b, err := pool.generatePrivate()
	require.NoError(t, err)

	aPub := a.PublicBytes()
	bPub := b.PublicBytes()

	sharedA, err := Derive(a, new(big.Int).SetBytes(bPub))
	require.NoError(t, err)
	sharedB, err := Derive(b, new(big.Int).SetBytes(aPub))
	require.NoError(t, err)

	assert.Equal(t, sharedA, sharedB)
	assert.Len(t, sharedA, 32)
	assert.Equal(t, params.P, a.P)
}

func TestConcurrentTakeReturn(t *testing.T) {
	pool := New(64, 16)
	_, err := pool.Parameters()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := pool.Take()
			require.NoError(t, err)
			pool.Return(k)
		}()
	}
	wg.Wait()
}
