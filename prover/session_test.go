package prover

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/witness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	s, err := r.Start(context.Background(), root, w)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Same(t, s, r.Find(s.ID.String()))
	assert.Nil(t, r.Find("unknown"))

	status := s.Status()
	assert.Equal(t, uint64(1), status.Steps)
	assert.Equal(t, root, status.Root)

	r.Remove(s.ID.String())
	r.Remove(s.ID.String())
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Find(s.ID.String()))
}

func TestRegistryStartFailureRegistersNothing(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, _ := witness.Example()

	_, err := r.Start(context.Background(), "root", w)
	assert.True(t, errors.Is(err, common.ErrMalformedRoot))
	assert.Equal(t, 0, r.Len())
}

func TestSessionFoldChaffVerify(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	s, err := r.Start(context.Background(), root, w)
	require.NoError(t, err)

	status, err := s.Fold(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), status.Steps)

	status, err = s.Chaff(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), status.Steps)

	out, err := s.Verify()
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Verified().Int64())
}

func TestSessionChaffIsAllOrNothing(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	s, err := r.Start(context.Background(), root, w)
	require.NoError(t, err)
	before := s.Snapshot()

	// zeroed randomness is never rejected, so one chaff witness reads
	// five scalars plus a bit and a sibling per level
	perChaff := 5*32 + witness.ExampleDepth*(1+32)
	r.Prover().WithRandomness(bytes.NewReader(make([]byte, perChaff+perChaff/2)))
	_, err = s.Chaff(context.Background(), 3)
	assert.True(t, errors.Is(err, common.ErrRandomness))
	assert.Equal(t, before, s.Snapshot())
}

func TestSessionsFoldConcurrently(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	var wg sync.WaitGroup
	sessions := make([]*Session, 4)
	for i := range sessions {
		s, err := r.Start(context.Background(), root, w)
		require.NoError(t, err)
		sessions[i] = s
	}

	errs := make(chan error, len(sessions)*3)
	for _, s := range sessions {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				_, err := s.Fold(context.Background(), w)
				errs <- err
			}(s)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for _, s := range sessions {
		out, err := s.Verify()
		require.NoError(t, err)
		assert.Equal(t, int64(4), out.Verified().Int64())
	}
}

func TestSessionCompress(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	s, err := r.Start(context.Background(), root, w)
	require.NoError(t, err)

	_, err = s.Chaff(context.Background(), 1)
	require.NoError(t, err)

	pk, vk, err := r.Prover().Engine().SetupCompression(context.Background(), r.Prover().Params())
	require.NoError(t, err)

	cp, err := s.Compress(context.Background(), pk)
	require.NoError(t, err)

	out, err := s.VerifyCompressed(cp, vk, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Verified().Int64())
	assert.Equal(t, uint64(2), cp.Steps)
}

func TestSessionRejectsStaleCompressedProof(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	s, err := r.Start(context.Background(), root, w)
	require.NoError(t, err)

	pk, vk, err := r.Prover().Engine().SetupCompression(context.Background(), r.Prover().Params())
	require.NoError(t, err)

	cp, err := s.Compress(context.Background(), pk)
	require.NoError(t, err)

	_, err = s.Fold(context.Background(), exampleWitness())
	require.NoError(t, err)
	status, err := s.Chaff(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(4), status.Steps)

	_, err = s.VerifyCompressed(cp, vk, status.Steps)
	assert.True(t, errors.Is(err, common.ErrVerificationFailed))

	_, err = s.VerifyCompressed(cp, vk, 1)
	assert.NoError(t, err)
}

func TestConcurrentFoldsReportTheirOwnStep(t *testing.T) {
	r := NewRegistry(newTestProver(t))
	w, root := witness.Example()

	s, err := r.Start(context.Background(), root, w)
	require.NoError(t, err)

	const folds = 8
	steps := make(chan uint64, folds)

	var wg sync.WaitGroup
	for i := 0; i < folds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := s.Fold(context.Background(), exampleWitness())
			if assert.NoError(t, err) {
				steps <- status.Steps
			}
		}()
	}
	wg.Wait()
	close(steps)

	seen := map[uint64]bool{}
	for step := range steps {
		assert.False(t, seen[step], "step %d reported twice", step)
		seen[step] = true
	}
	assert.Len(t, seen, folds)
	assert.Equal(t, uint64(folds+1), s.Status().Steps)
}
