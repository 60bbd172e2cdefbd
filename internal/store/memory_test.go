package store

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	value, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, s.Set(ctx, "k", []byte("v2")))
	value, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)

	existed, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, "k", []byte("abc")))
	value, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	value[0] = 'z'

	again, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryUpdateCreatesWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.Update(ctx, "k", func(old []byte, found bool) ([]byte, error) {
		assert.False(t, found)
		assert.Nil(t, old)
		return []byte("created"), nil
	})
	require.NoError(t, err)

	value, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("created"), value)
}

func TestMemoryUpdateErrorLeavesValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "k", []byte("before")))

	wantErr := errors.New("rejected")
	err := s.Update(ctx, "k", func(old []byte, found bool) ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	value, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), value)
}

func TestMemoryUpdateConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := s.Update(ctx, "counter", func(old []byte, found bool) ([]byte, error) {
					var n uint64
					if found {
						n = binary.BigEndian.Uint64(old)
					}
					next := make([]byte, 8)
					binary.BigEndian.PutUint64(next, n+1)
					return next, nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	value, found, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(workers*perWorker), binary.BigEndian.Uint64(value))
}
