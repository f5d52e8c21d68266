package params

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/verifier"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunks = 3

func newManager(t *testing.T) *Manager {
	return NewManager(providers.InitNativeEngine(), t.TempDir(), testChunks, nil)
}

func TestGenerateParamsPersistsFullAndChunked(t *testing.T) {
	m := newManager(t)
	circuit := providers.MembershipCircuit(witness.ExampleDepth)

	params, err := m.GenerateParams(context.Background(), circuit)
	require.NoError(t, err)
	assert.Equal(t, circuit.Digest, params.Circuit)

	raw, err := os.ReadFile(m.ParamsPath())
	require.NoError(t, err)

	var persisted providers.PublicParams
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, *params, persisted)

	for i := 0; i < testChunks; i++ {
		_, err := os.Stat(filepath.Join(m.ArtifactDir(ParamsArtifact), artifact.ChunkFileName(ParamsArtifact, i)))
		assert.NoError(t, err)
	}
}

func TestGenerateParamsReusesPersistedParams(t *testing.T) {
	dir := t.TempDir()
	circuit := providers.MembershipCircuit(witness.ExampleDepth)

	first, err := NewManager(providers.InitNativeEngine(), dir, testChunks, nil).GenerateParams(context.Background(), circuit)
	require.NoError(t, err)

	stat, err := os.Stat(filepath.Join(dir, ParamsArtifact, "params.json"))
	require.NoError(t, err)

	second, err := NewManager(providers.InitNativeEngine(), dir, testChunks, nil).GenerateParams(context.Background(), circuit)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	restat, err := os.Stat(filepath.Join(dir, ParamsArtifact, "params.json"))
	require.NoError(t, err)
	assert.Equal(t, stat.ModTime(), restat.ModTime())

	other, err := NewManager(providers.InitNativeEngine(), dir, testChunks, nil).GenerateParams(context.Background(), providers.MembershipCircuit(witness.ExampleDepth+1))
	require.NoError(t, err)
	assert.NotEqual(t, first.Key, other.Key)
}

func TestGenerateParamsRequiresCircuit(t *testing.T) {
	_, err := newManager(t).GenerateParams(context.Background(), nil)
	assert.True(t, errors.Is(err, common.ErrMalformedInput))
}

func TestLoadParams(t *testing.T) {
	m := newManager(t)
	params, err := m.GenerateParams(context.Background(), providers.MembershipCircuit(witness.ExampleDepth))
	require.NoError(t, err)

	server := httptest.NewServer(http.FileServer(http.Dir(m.Dir())))
	defer server.Close()

	locations := map[string]string{
		"full json": m.ParamsPath(),
		"chunk dir": m.ArtifactDir(ParamsArtifact),
		"chunk url": server.URL + "/" + ParamsArtifact,
		"full url":  server.URL + "/" + ParamsArtifact + "/params.json",
	}

	for name, location := range locations {
		t.Run(name, func(t *testing.T) {
			loader := NewManager(providers.InitNativeEngine(), t.TempDir(), testChunks, nil)
			loaded, err := loader.LoadParams(context.Background(), location)
			require.NoError(t, err)
			assert.Equal(t, params, loaded)

			cached, err := loader.LoadParams(context.Background(), location)
			require.NoError(t, err)
			assert.Same(t, loaded, cached)
		})
	}
}

func TestLoadParamsFailures(t *testing.T) {
	m := newManager(t)

	_, err := m.LoadParams(context.Background(), filepath.Join(m.Dir(), "missing.json"))
	assert.True(t, errors.Is(err, common.ErrIO))

	_, err = m.LoadParams(context.Background(), filepath.Join(m.Dir(), "missing"))
	assert.True(t, errors.Is(err, common.ErrIO))

	garbage := filepath.Join(m.Dir(), "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{"), 0644))
	_, err = m.LoadParams(context.Background(), garbage)
	assert.True(t, errors.Is(err, common.ErrCodec))

	foreign := filepath.Join(m.Dir(), "foreign.json")
	require.NoError(t, os.WriteFile(foreign, []byte(`{"engine":"nova","key":"1"}`), 0644))
	_, err = m.LoadParams(context.Background(), foreign)
	assert.True(t, errors.Is(err, common.ErrMalformedInput))
}

func TestRequireParams(t *testing.T) {
	m := newManager(t)
	circuit := providers.MembershipCircuit(witness.ExampleDepth)

	generated, err := m.RequireParams(context.Background(), circuit, "")
	require.NoError(t, err)

	loaded, err := m.RequireParams(context.Background(), circuit, m.ParamsPath())
	require.NoError(t, err)
	assert.Equal(t, generated.Key, loaded.Key)

	_, err = m.RequireParams(context.Background(), providers.MembershipCircuit(witness.ExampleDepth+1), m.ParamsPath())
	assert.True(t, errors.Is(err, common.ErrMalformedInput))
}

func TestDeriveAndLoadKeys(t *testing.T) {
	m := newManager(t)
	params, err := m.GenerateParams(context.Background(), providers.MembershipCircuit(witness.ExampleDepth))
	require.NoError(t, err)

	pk, vk, err := m.DeriveKeys(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, params.Key, pk.Params)
	assert.Equal(t, params.Key, vk.Params)

	loader := NewManager(providers.InitNativeEngine(), m.Dir(), testChunks, nil)
	lpk, lvk, err := loader.CompressionKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pk.Key, lpk.Key)
	assert.Equal(t, vk.Key, lvk.Key)

	_, _, err = newManager(t).CompressionKeys(context.Background())
	assert.True(t, errors.Is(err, common.ErrIO))
}

func TestConcurrentDeriveKeysPersistsOnePair(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	params, err := m.GenerateParams(ctx, providers.MembershipCircuit(witness.ExampleDepth))
	require.NoError(t, err)

	managers := []*Manager{m, NewManager(providers.InitNativeEngine(), m.Dir(), testChunks, nil)}
	setups := make([]string, len(managers))
	errs := make([]error, len(managers))

	var wg sync.WaitGroup
	for i := range managers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pk, _, err := managers[i].DeriveKeys(ctx, params)
			errs[i] = err
			if pk != nil {
				setups[i] = pk.Setup
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.NotEqual(t, setups[0], setups[1])

	loader := NewManager(providers.InitNativeEngine(), m.Dir(), testChunks, nil)
	pk, vk, err := loader.CompressionKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, pk.Setup, vk.Setup)
	assert.Contains(t, setups, pk.Setup)

	staged, err := filepath.Glob(filepath.Join(m.Dir(), ".keys-*"))
	require.NoError(t, err)
	assert.Empty(t, staged)

	w, root := witness.Example()
	z0, err := verifier.StartState(root)
	require.NoError(t, err)

	engine := providers.InitNativeEngine()
	fs, err := engine.CreateRecursiveProof(ctx, providers.InitMembershipStepCalculator(), providers.MembershipCircuit(witness.ExampleDepth), []map[string]interface{}{w.ToEngineInputs()}, z0, params)
	require.NoError(t, err)

	cp, err := engine.CompressProof(ctx, fs, params, pk)
	require.NoError(t, err)

	out, err := engine.VerifyCompressedProof(cp, vk, 1, z0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Verified().Int64())
}

func TestCompressionKeysRejectMixedSetups(t *testing.T) {
	ctx := context.Background()
	circuit := providers.MembershipCircuit(witness.ExampleDepth)

	a := newManager(t)
	params, err := a.GenerateParams(ctx, circuit)
	require.NoError(t, err)
	_, _, err = a.DeriveKeys(ctx, params)
	require.NoError(t, err)

	b := newManager(t)
	_, err = b.GenerateParams(ctx, circuit)
	require.NoError(t, err)
	_, _, err = b.DeriveKeys(ctx, params)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(a.ArtifactDir(VerifierKeyArtifact)))
	require.NoError(t, os.Rename(b.ArtifactDir(VerifierKeyArtifact), a.ArtifactDir(VerifierKeyArtifact)))

	loader := NewManager(providers.InitNativeEngine(), a.Dir(), testChunks, nil)
	_, _, err = loader.CompressionKeys(ctx)
	assert.True(t, errors.Is(err, common.ErrMalformedInput))
}

func TestHandleGenerateRequest(t *testing.T) {
	m := newManager(t)

	location := filepath.Join(t.TempDir(), "folded.json")
	raw, err := json.Marshal(providers.MembershipCircuit(witness.ExampleDepth))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(location, raw, 0644))

	result := m.HandleGenerateRequest(context.Background(), &GenerateRequest{CircuitLocation: location})
	require.Nil(t, result.Error)
	assert.Equal(t, providers.MembershipCircuit(witness.ExampleDepth).Digest, result.Circuit)
	assert.NotEmpty(t, result.Params)
	assert.False(t, result.Keys)

	failed := m.HandleGenerateRequest(context.Background(), &GenerateRequest{CircuitLocation: filepath.Join(t.TempDir(), "missing.json")})
	require.NotNil(t, failed.Error)
	assert.Empty(t, failed.Params)
}
