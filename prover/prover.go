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

package prover

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"time"

	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/verifier"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/field"
	"github.com/provideplatform/fold/zkp/providers"
)

const stepKindStart = "start"
const stepKindContinue = "continue"
const stepKindChaff = "chaff"

// Prover drives fold steps against a recursive proof engine; the engine,
// circuit and params it holds are shared read-only across sessions
type Prover struct {
	engine  providers.Engine
	calc    providers.WitnessCalculator
	circuit *providers.CircuitDef
	params  *providers.PublicParams

	log  common.Logger
	rand io.Reader
}

// New returns a prover for the given circuit and public params; a nil logger
// uses the package default
func New(
	engine providers.Engine,
	calc providers.WitnessCalculator,
	circuit *providers.CircuitDef,
	params *providers.PublicParams,
	log common.Logger,
) *Prover {
	return &Prover{
		engine:  engine,
		calc:    calc,
		circuit: circuit,
		params:  params,
		log:     common.LoggerOrDefault(log),
		rand:    rand.Reader,
	}
}

// WithRandomness sets the source chaff witnesses are synthesized from
func (p *Prover) WithRandomness(src io.Reader) *Prover {
	p.rand = src
	return p
}

// Engine returns the prover's engine
func (p *Prover) Engine() providers.Engine {
	return p.engine
}

// Circuit returns the prover's circuit
func (p *Prover) Circuit() *providers.CircuitDef {
	return p.circuit
}

// Params returns the prover's public params
func (p *Prover) Params() *providers.PublicParams {
	return p.params
}

// ParseRoot converts a decimal root to its canonical little-endian encoding
func ParseRoot(root string) ([32]byte, error) {
	return field.ParseRoot(root)
}

func startState(root string) (state.PublicOutput, error) {
	le, err := ParseRoot(root)
	if err != nil {
		return state.PublicOutput{}, err
	}

	r, err := field.FromLittleEndian(le)
	if err != nil {
		return state.PublicOutput{}, common.Wrap(common.ErrMalformedRoot, err, "failed to decode root")
	}

	return state.NewPublicOutput(r), nil
}

// Start folds the first witness into a new fold state starting at
// z0 = [root, 0, 0, 0]
func (p *Prover) Start(ctx context.Context, root string, w *witness.Witness) (*state.FoldState, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	z0, err := startState(root)
	if err != nil {
		return nil, err
	}

	err = w.Validate(p.circuit.Depth)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	fs, err := p.engine.CreateRecursiveProof(ctx, p.calc, p.circuit, []map[string]interface{}{w.ToEngineInputs()}, z0, p.params)
	if err != nil {
		p.log.Warningf("failed to start fold; %s", err.Error())
		return nil, engineError(err, "failed to start fold")
	}

	observeStep(stepKindStart, started)
	p.log.Debugf("started fold against root %s", root)
	return fs, nil
}

// Continue folds w into fs; prior must be the output of the last step. On
// success fs is updated in place and returned; on failure fs is untouched.
func (p *Prover) Continue(ctx context.Context, fs *state.FoldState, w *witness.Witness, prior state.PublicOutput) (*state.FoldState, error) {
	err := w.Validate(p.circuit.Depth)
	if err != nil {
		return nil, err
	}

	return p.step(ctx, stepKindContinue, fs, w.ToEngineInputs(), prior)
}

// Chaff folds a synthesized inert witness into fs, leaving the verified
// count unchanged
func (p *Prover) Chaff(ctx context.Context, fs *state.FoldState, prior state.PublicOutput) (*state.FoldState, error) {
	inputs, err := witness.Chaff(p.circuit.Depth, p.rand)
	if err != nil {
		return nil, err
	}

	return p.step(ctx, stepKindChaff, fs, inputs, prior)
}

func (p *Prover) step(ctx context.Context, kind string, fs *state.FoldState, inputs map[string]interface{}, prior state.PublicOutput) (*state.FoldState, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	if fs == nil || len(fs.Proof) == 0 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "fold has not been started")
	}

	root := fs.Root()
	priorRoot := prior.Root()
	if !priorRoot.Equal(&root) {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "prior output root does not match the fold root")
	}

	next := fs.Clone()
	started := time.Now()
	err = p.engine.ContinueRecursiveProof(ctx, next, prior, p.calc, p.circuit, []map[string]interface{}{inputs}, state.NewPublicOutput(root), p.params)
	if err != nil {
		p.log.Warningf("failed to apply %s step %d; %s", kind, fs.Steps, err.Error())
		return nil, engineError(err, "failed to apply %s step", kind)
	}

	fs.Commit(next)
	observeStep(kind, started)
	p.log.Debugf("applied %s step; fold now has %d steps", kind, fs.Steps)
	return fs, nil
}

// Fold starts a fold with the first witness, continues with the rest and
// finishes with the given number of chaff steps
func (p *Prover) Fold(ctx context.Context, root string, witnesses []*witness.Witness, chaffSteps int) (*state.FoldState, error) {
	if len(witnesses) == 0 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "at least one witness is required to fold")
	}

	fs, err := p.Start(ctx, root, witnesses[0])
	if err != nil {
		return nil, err
	}

	for _, w := range witnesses[1:] {
		_, err = p.Continue(ctx, fs, w, fs.Output)
		if err != nil {
			return nil, err
		}
	}

	for i := 0; i < chaffSteps; i++ {
		_, err = p.Chaff(ctx, fs, fs.Output)
		if err != nil {
			return nil, err
		}
	}

	return fs, nil
}

// Verify checks fs against the expected root and step count
func (p *Prover) Verify(fs *state.FoldState, steps uint64, root string) (state.PublicOutput, error) {
	out, err := verifier.New(p.engine, p.log).VerifyRecursive(fs, p.params, steps, root)
	observeVerification(verifier.KindRecursive, err)
	return out, err
}

// Compress produces a succinct proof of fs
func (p *Prover) Compress(ctx context.Context, fs *state.FoldState, pk *providers.ProverKey) (*providers.CompressedProof, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	cp, err := p.engine.CompressProof(ctx, fs, p.params, pk)
	if err != nil {
		p.log.Warningf("failed to compress fold of %d steps; %s", fs.Steps, err.Error())
		return nil, engineError(err, "failed to compress fold")
	}

	observeCompression(started)
	return cp, nil
}

// RandomChaffCount picks a uniformly random number of chaff steps in [min, max]
func RandomChaffCount(min, max int, src io.Reader) (int, error) {
	if min < 0 || max < min {
		return 0, common.Wrap(common.ErrMalformedInput, nil, "invalid chaff range [%d, %d]", min, max)
	}

	if src == nil {
		src = rand.Reader
	}

	n, err := rand.Int(src, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, common.Wrap(common.ErrRandomness, err, "failed to pick chaff count")
	}

	return min + int(n.Int64()), nil
}

func engineError(err error, format string, args ...interface{}) error {
	if errors.Is(err, common.ErrEngine) || errors.Is(err, common.ErrMalformedInput) || errors.Is(err, common.ErrRandomness) {
		return err
	}
	return common.Wrap(common.ErrEngine, err, format, args...)
}
