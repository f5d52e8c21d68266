package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/provideplatform/fold/accumulator"
	"github.com/provideplatform/fold/params"
	"github.com/provideplatform/fold/zkp/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	out := new(bytes.Buffer)
	paramsgenCmd.SetOut(out)
	paramsgenCmd.SetErr(out)
	paramsgenCmd.SetArgs(args)

	err := paramsgenCmd.Execute()
	return out.String(), err
}

func TestCircuitAndParamsCommands(t *testing.T) {
	dir := t.TempDir()
	circuitPath := filepath.Join(dir, "folded.json")

	_, err := execute(t, "circuit", circuitPath, "--depth", "4")
	require.NoError(t, err)

	circuit, err := providers.InitNativeEngine().LoadCircuit(context.Background(), circuitPath)
	require.NoError(t, err)
	assert.Equal(t, 4, circuit.Depth)

	output := filepath.Join(dir, "artifacts")
	out, err := execute(t, "chunked-params", circuitPath, output, "--chunks", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "saved params")

	out, err = execute(t, "chunked-keys", output, "--chunks", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2-chunk compression keys")

	m := params.NewManager(providers.InitNativeEngine(), output, 2, nil)
	p, err := m.LoadParams(context.Background(), m.ArtifactDir(params.ParamsArtifact))
	require.NoError(t, err)
	assert.Equal(t, circuit.Digest, p.Circuit)

	pk, vk, err := m.CompressionKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.Key, pk.Params)
	assert.Equal(t, p.Key, vk.Params)
}

func TestParamsCommandDerivesKeys(t *testing.T) {
	dir := t.TempDir()
	circuitPath := filepath.Join(dir, "folded.json")

	_, err := execute(t, "circuit", circuitPath, "--depth", "3")
	require.NoError(t, err)

	output := filepath.Join(dir, "artifacts")
	_, err = execute(t, "params", circuitPath, output, "--chunks", "3")
	require.NoError(t, err)

	m := params.NewManager(providers.InitNativeEngine(), output, 3, nil)
	_, _, err = m.CompressionKeys(context.Background())
	require.NoError(t, err)
}

func TestCommandFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "chunked-params", filepath.Join(dir, "missing.json"), dir)
	assert.Error(t, err)

	_, err = execute(t, "chunked-keys", dir)
	assert.Error(t, err)

	_, err = execute(t, "params", "only-one-arg")
	assert.Error(t, err)
}

func TestTreeCommand(t *testing.T) {
	keys := [][2]string{{"11", "12"}, {"21", "22"}, {"31", "32"}}
	raw, err := json.Marshal(keys)
	require.NoError(t, err)

	keysPath := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(keysPath, raw, 0644))

	out, err := execute(t, "tree", "--keys", keysPath, "--depth", "3", "--index", "2")
	require.NoError(t, err)

	var decoded struct {
		Root        string   `json:"root"`
		Length      int      `json:"length"`
		PathIndices []int    `json:"pathIndices"`
		Siblings    []string `json:"siblings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	tree, err := accumulator.NewTree(3)
	require.NoError(t, err)
	for _, key := range keys {
		_, err := tree.InsertPublicKey(key[0], key[1])
		require.NoError(t, err)
	}

	assert.Equal(t, tree.RootString(), decoded.Root)
	assert.Equal(t, 3, decoded.Length)
	assert.Equal(t, []int{0, 1, 0}, decoded.PathIndices)
	assert.Len(t, decoded.Siblings, 3)

	_, err = execute(t, "tree", "--keys", keysPath, "--depth", "3", "--index", "5")
	assert.Error(t, err)
}
