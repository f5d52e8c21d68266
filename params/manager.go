/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package params

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/zkp/providers"
)

// ParamsArtifact names the public params artifact and its directory
const ParamsArtifact = "params"

// ProverKeyArtifact names the compression proving key artifact and its directory
const ProverKeyArtifact = "pk"

// VerifierKeyArtifact names the compression verifying key artifact and its directory
const VerifierKeyArtifact = "vk"

const generatorLockFile = ".params.lock"
const generatorLockRetryDelay = time.Millisecond * 250

// Manager generates, persists and loads the public params and compression
// keys for one engine. Loaded artifacts are cached and must be treated as
// read-only by callers.
type Manager struct {
	engine providers.Engine
	dir    string
	chunks int
	log    common.Logger

	mutex  sync.Mutex
	params map[string]*providers.PublicParams
	pks    map[string]*providers.ProverKey
	vks    map[string]*providers.VerifierKey
}

// NewManager returns a manager persisting artifacts under dir, split into the
// given number of chunks
func NewManager(engine providers.Engine, dir string, chunks int, log common.Logger) *Manager {
	if chunks < 1 {
		chunks = 1
	}

	return &Manager{
		engine: engine,
		dir:    dir,
		chunks: chunks,
		log:    common.LoggerOrDefault(log),
		params: map[string]*providers.PublicParams{},
		pks:    map[string]*providers.ProverKey{},
		vks:    map[string]*providers.VerifierKey{},
	}
}

// Dir returns the directory artifacts are persisted under
func (m *Manager) Dir() string {
	return m.dir
}

// ParamsPath returns the path of the full public params JSON
func (m *Manager) ParamsPath() string {
	return filepath.Join(m.dir, ParamsArtifact, ParamsArtifact+".json")
}

// ArtifactDir returns the chunk directory of the named artifact
func (m *Manager) ArtifactDir(name string) string {
	return filepath.Join(m.dir, name)
}

// GenerateParams creates and persists the public params for circuit. A
// filesystem lock admits a single generator; params already persisted for
// the same circuit version are reused.
func (m *Manager) GenerateParams(ctx context.Context, circuit *providers.CircuitDef) (*providers.PublicParams, error) {
	if circuit == nil {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "circuit required to generate params")
	}

	fileLock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer fileLock.Unlock()

	existing, err := m.readParams(ctx, m.ParamsPath())
	if err == nil && existing.Circuit == circuit.Digest && existing.Engine == m.engine.Name() {
		m.log.Debugf("reusing public params for circuit %s", circuit.Digest)
		m.cacheParams(m.ParamsPath(), existing)
		return existing, nil
	}

	started := time.Now()
	params, err := m.engine.CreatePublicParams(ctx, circuit)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to marshal public params")
	}

	err = artifact.WriteFile(m.ParamsPath(), raw)
	if err != nil {
		return nil, err
	}

	err = m.writeChunked(ParamsArtifact, params)
	if err != nil {
		return nil, err
	}

	m.cacheParams(m.ParamsPath(), params)
	m.log.Debugf("generated public params for circuit %s in %v", circuit.Digest, time.Since(started))
	return params, nil
}

// DeriveKeys runs the compression setup for params and persists the chunked
// proving and verifying keys. It holds the generator lock, and both keys are
// staged and then moved into place so readers never see keys of two setups.
func (m *Manager) DeriveKeys(ctx context.Context, params *providers.PublicParams) (*providers.ProverKey, *providers.VerifierKey, error) {
	if params == nil {
		return nil, nil, common.Wrap(common.ErrMalformedInput, nil, "params required to derive keys")
	}

	fileLock, err := m.lock(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer fileLock.Unlock()

	started := time.Now()
	pk, vk, err := m.engine.SetupCompression(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	staging, err := os.MkdirTemp(m.dir, ".keys-")
	if err != nil {
		return nil, nil, common.Wrap(common.ErrIO, err, "failed to create key staging directory in %s", m.dir)
	}
	defer os.RemoveAll(staging)

	err = m.writeChunkedTo(filepath.Join(staging, ProverKeyArtifact), ProverKeyArtifact, pk)
	if err != nil {
		return nil, nil, err
	}

	err = m.writeChunkedTo(filepath.Join(staging, VerifierKeyArtifact), VerifierKeyArtifact, vk)
	if err != nil {
		return nil, nil, err
	}

	for _, name := range []string{ProverKeyArtifact, VerifierKeyArtifact} {
		err = replaceDir(filepath.Join(staging, name), m.ArtifactDir(name))
		if err != nil {
			return nil, nil, err
		}
	}

	m.mutex.Lock()
	m.pks[m.ArtifactDir(ProverKeyArtifact)] = pk
	m.vks[m.ArtifactDir(VerifierKeyArtifact)] = vk
	m.mutex.Unlock()

	m.log.Debugf("derived compression keys for params %s in %v", params.Key, time.Since(started))
	return pk, vk, nil
}

// LoadParams loads public params from a full JSON file or from a chunk
// directory or base URL
func (m *Manager) LoadParams(ctx context.Context, location string) (*providers.PublicParams, error) {
	m.mutex.Lock()
	cached := m.params[location]
	m.mutex.Unlock()
	if cached != nil {
		return cached, nil
	}

	params, err := m.readParams(ctx, location)
	if err != nil {
		return nil, err
	}

	m.cacheParams(location, params)
	return params, nil
}

// LoadProverKey loads the compression proving key from a full JSON file or
// from a chunk directory or base URL
func (m *Manager) LoadProverKey(ctx context.Context, location string) (*providers.ProverKey, error) {
	m.mutex.Lock()
	cached := m.pks[location]
	m.mutex.Unlock()
	if cached != nil {
		return cached, nil
	}

	pk := &providers.ProverKey{}
	err := m.load(ctx, location, ProverKeyArtifact, pk)
	if err != nil {
		return nil, err
	}

	if pk.Engine != m.engine.Name() || len(pk.Key) == 0 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "proving key at %s is not a %s key", location, m.engine.Name())
	}

	m.mutex.Lock()
	m.pks[location] = pk
	m.mutex.Unlock()
	return pk, nil
}

// LoadVerifierKey loads the compression verifying key from a full JSON file
// or from a chunk directory or base URL
func (m *Manager) LoadVerifierKey(ctx context.Context, location string) (*providers.VerifierKey, error) {
	m.mutex.Lock()
	cached := m.vks[location]
	m.mutex.Unlock()
	if cached != nil {
		return cached, nil
	}

	vk := &providers.VerifierKey{}
	err := m.load(ctx, location, VerifierKeyArtifact, vk)
	if err != nil {
		return nil, err
	}

	if vk.Engine != m.engine.Name() || len(vk.Key) == 0 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "verifying key at %s is not a %s key", location, m.engine.Name())
	}

	m.mutex.Lock()
	m.vks[location] = vk
	m.mutex.Unlock()
	return vk, nil
}

// RequireParams loads params from location when given, otherwise reuses or
// generates the params persisted under the manager's directory
func (m *Manager) RequireParams(ctx context.Context, circuit *providers.CircuitDef, location string) (*providers.PublicParams, error) {
	if location != "" {
		params, err := m.LoadParams(ctx, location)
		if err != nil {
			return nil, err
		}

		if circuit != nil && params.Circuit != circuit.Digest {
			return nil, common.Wrap(common.ErrMalformedInput, nil, "params at %s were generated for circuit %s; loaded circuit is %s", location, params.Circuit, circuit.Digest)
		}
		return params, nil
	}

	return m.GenerateParams(ctx, circuit)
}

// CompressionKeys loads the keys persisted under the manager's directory
func (m *Manager) CompressionKeys(ctx context.Context) (*providers.ProverKey, *providers.VerifierKey, error) {
	fileLock, err := m.lock(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer fileLock.Unlock()

	pk, err := m.LoadProverKey(ctx, m.ArtifactDir(ProverKeyArtifact))
	if err != nil {
		return nil, nil, err
	}

	vk, err := m.LoadVerifierKey(ctx, m.ArtifactDir(VerifierKeyArtifact))
	if err != nil {
		return nil, nil, err
	}

	if pk.Params != vk.Params {
		return nil, nil, common.Wrap(common.ErrMalformedInput, nil, "compression keys were derived from different params")
	}

	if pk.Setup != vk.Setup {
		return nil, nil, common.Wrap(common.ErrMalformedInput, nil, "compression keys in %s come from different setups", m.dir)
	}

	return pk, vk, nil
}

func (m *Manager) readParams(ctx context.Context, location string) (*providers.PublicParams, error) {
	params := &providers.PublicParams{}
	err := m.load(ctx, location, ParamsArtifact, params)
	if err != nil {
		return nil, err
	}

	if params.Engine != m.engine.Name() || params.Key == "" {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "params at %s are not %s params", location, m.engine.Name())
	}

	return params, nil
}

func (m *Manager) cacheParams(location string, params *providers.PublicParams) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.params[location] = params
}

// load decodes a full JSON artifact, or reassembles and inflates its chunks
func (m *Manager) load(ctx context.Context, location, name string, v interface{}) error {
	if isJSONLocation(location) {
		raw, err := artifact.Fetch(ctx, location)
		if err != nil {
			return err
		}

		err = json.Unmarshal(raw, v)
		if err != nil {
			return common.Wrap(common.ErrCodec, err, "failed to unmarshal %s", location)
		}
		return nil
	}

	gz, err := artifact.ReadChunks(ctx, location, name, m.chunks)
	if err != nil {
		return err
	}

	err = artifact.UnmarshalCompressed(gz, v)
	if err != nil {
		if errors.Is(err, common.ErrCodec) {
			return common.Wrap(common.ErrCodec, err, "failed to reassemble %s from %s", name, location)
		}
		return err
	}

	return nil
}

// lock acquires the generator lock of the artifacts directory
func (m *Manager) lock(ctx context.Context) (*flock.Flock, error) {
	err := os.MkdirAll(m.dir, 0755)
	if err != nil {
		return nil, common.Wrap(common.ErrIO, err, "failed to create params directory %s", m.dir)
	}

	fileLock := flock.New(filepath.Join(m.dir, generatorLockFile))
	locked, err := fileLock.TryLockContext(ctx, generatorLockRetryDelay)
	if err != nil || !locked {
		return nil, common.Wrap(common.ErrIO, err, "failed to acquire params generator lock in %s", m.dir)
	}

	return fileLock, nil
}

func (m *Manager) writeChunked(name string, v interface{}) error {
	return m.writeChunkedTo(m.ArtifactDir(name), name, v)
}

func (m *Manager) writeChunkedTo(dir, name string, v interface{}) error {
	gz, err := artifact.MarshalCompressed(v)
	if err != nil {
		return err
	}

	return artifact.WriteChunks(dir, name, gz, m.chunks)
}

// replaceDir moves src over dst, discarding whatever dst held
func replaceDir(src, dst string) error {
	err := os.RemoveAll(dst)
	if err != nil {
		return common.Wrap(common.ErrIO, err, "failed to remove %s", dst)
	}

	err = os.Rename(src, dst)
	if err != nil {
		return common.Wrap(common.ErrIO, err, "failed to move %s into place", dst)
	}

	return nil
}

func isJSONLocation(location string) bool {
	return strings.HasSuffix(strings.ToLower(location), ".json")
}
