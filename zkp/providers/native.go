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

package providers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/constraint"
	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/zkp/field"
	"golang.org/x/crypto/sha3"
)

// MembershipCircuitName is the name of the folded membership step circuit
const MembershipCircuitName = "bjj_ecdsa_membership"

// NativeEngine folds steps into a MiMC hash chain: every step absorbs its
// public input, a digest of its witness assignment and its public output,
// and the chain is sealed together with the params, z0, z_n and the step
// count. The compressed form is a groth16 proof of knowledge of the chain.
type NativeEngine struct {
	mutex sync.Mutex
	ccs   constraint.ConstraintSystem
}

// nativeProof is the opaque proof blob carried by a fold state
type nativeProof struct {
	Engine      string             `json:"engine"`
	Circuit     string             `json:"circuit"`
	Params      string             `json:"params"`
	Z0          state.PublicOutput `json:"z0"`
	Zn          state.PublicOutput `json:"zn"`
	Steps       uint64             `json:"steps"`
	Accumulator string             `json:"accumulator"`
	Seal        string             `json:"seal"`
}

// InitNativeEngine initializes a new native engine
func InitNativeEngine() *NativeEngine {
	return &NativeEngine{}
}

// Name of the engine
func (e *NativeEngine) Name() string {
	return EngineProviderNative
}

// MembershipCircuit returns the definition of the native membership step
// circuit for the given accumulator depth
func MembershipCircuit(depth int) *CircuitDef {
	c := &CircuitDef{
		Name:  MembershipCircuitName,
		Depth: depth,
		Arity: state.Arity,
	}
	c.Digest = circuitDigest(c)
	return c
}

func circuitDigest(c *CircuitDef) string {
	descriptor, _ := json.Marshal(&CircuitDef{
		Name:  c.Name,
		Depth: c.Depth,
		Arity: c.Arity,
	})
	digest := sha3.Sum256(descriptor)
	return hex.EncodeToString(digest[:])
}

// LoadCircuit reads a circuit descriptor from a local path or URL
func (e *NativeEngine) LoadCircuit(ctx context.Context, location string) (*CircuitDef, error) {
	raw, err := artifact.Fetch(ctx, location)
	if err != nil {
		return nil, common.Wrap(common.ErrCircuitLoad, err, "failed to load circuit from %s", location)
	}

	var c CircuitDef
	err = json.Unmarshal(raw, &c)
	if err != nil {
		return nil, common.Wrap(common.ErrCircuitLoad, err, "failed to unmarshal circuit %s", location)
	}

	if c.Name == "" || c.Depth < 1 || c.Arity != state.Arity {
		return nil, common.Wrap(common.ErrCircuitLoad, nil, "unsupported circuit %s; name %q, depth %d, arity %d", location, c.Name, c.Depth, c.Arity)
	}

	c.Digest = circuitDigest(&c)
	common.Log.Debugf("loaded %s circuit with depth %d from %s; digest %s", c.Name, c.Depth, location, c.Digest)
	return &c, nil
}

// CreatePublicParams deterministically derives the params key for a circuit
func (e *NativeEngine) CreatePublicParams(ctx context.Context, circuit *CircuitDef) (*PublicParams, error) {
	if circuit == nil || circuit.Digest == "" {
		return nil, common.Wrap(common.ErrEngine, nil, "failed to create public params; circuit not loaded")
	}

	digest, err := hex.DecodeString(circuit.Digest)
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "failed to decode circuit digest")
	}

	var seed, depth, arity fr.Element
	seed.SetBytes(digest)
	depth.SetUint64(uint64(circuit.Depth))
	arity.SetUint64(uint64(circuit.Arity))

	key := field.Hash(seed, depth, arity)
	return &PublicParams{
		Engine:  e.Name(),
		Circuit: circuit.Digest,
		Depth:   circuit.Depth,
		Arity:   circuit.Arity,
		Key:     field.String(key),
	}, nil
}

// CreateRecursiveProof starts a fold at z0 and applies one step per input map
func (e *NativeEngine) CreateRecursiveProof(
	ctx context.Context,
	calc WitnessCalculator,
	circuit *CircuitDef,
	inputs []map[string]interface{},
	z0 state.PublicOutput,
	params *PublicParams,
) (*state.FoldState, error) {
	if len(inputs) == 0 {
		return nil, common.Wrap(common.ErrEngine, nil, "failed to create recursive proof; no step inputs")
	}

	paramsKey, err := e.requireParams(circuit, params)
	if err != nil {
		return nil, err
	}

	proof := &nativeProof{
		Engine:      e.Name(),
		Circuit:     circuit.Digest,
		Params:      params.Key,
		Z0:          z0,
		Zn:          z0,
		Accumulator: "0",
	}

	err = e.fold(ctx, proof, calc, circuit, inputs)
	if err != nil {
		return nil, err
	}

	fs := &state.FoldState{}
	err = e.seal(fs, proof, paramsKey)
	if err != nil {
		return nil, err
	}

	return fs, nil
}

// ContinueRecursiveProof applies one step per input map to fs, which must end
// at prior; fs is only written once every step has succeeded
func (e *NativeEngine) ContinueRecursiveProof(
	ctx context.Context,
	fs *state.FoldState,
	prior state.PublicOutput,
	calc WitnessCalculator,
	circuit *CircuitDef,
	inputs []map[string]interface{},
	z0 state.PublicOutput,
	params *PublicParams,
) error {
	if len(inputs) == 0 {
		return common.Wrap(common.ErrEngine, nil, "failed to continue recursive proof; no step inputs")
	}

	paramsKey, err := e.requireParams(circuit, params)
	if err != nil {
		return err
	}

	proof, err := e.unseal(fs, paramsKey)
	if err != nil {
		return common.Wrap(common.ErrEngine, err, "failed to continue recursive proof")
	}

	if !proof.Z0.Equal(z0) {
		return common.Wrap(common.ErrEngine, nil, "failed to continue recursive proof; z0 mismatch")
	}

	if !proof.Zn.Equal(prior) {
		return common.Wrap(common.ErrEngine, nil, "failed to continue recursive proof; prior output is not the output of step %d", proof.Steps)
	}

	err = e.fold(ctx, proof, calc, circuit, inputs)
	if err != nil {
		return err
	}

	return e.seal(fs, proof, paramsKey)
}

// VerifyRecursiveProof checks the sealed fold against the params, the claimed
// step count and the starting states, and returns z_n
func (e *NativeEngine) VerifyRecursiveProof(
	fs *state.FoldState,
	params *PublicParams,
	steps uint64,
	z0 state.PublicOutput,
	z0Secondary []fp.Element,
) (state.PublicOutput, error) {
	var zn state.PublicOutput

	if params == nil || params.Engine != e.Name() {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "params were not generated by the %s engine", e.Name())
	}

	paramsKey, err := field.ParseElement(params.Key)
	if err != nil {
		return zn, common.Wrap(common.ErrVerificationFailed, err, "invalid params key")
	}

	if len(z0Secondary) != 1 || !z0Secondary[0].IsZero() {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "secondary start state must be a single zero element")
	}

	proof, err := e.unseal(fs, paramsKey)
	if err != nil {
		return zn, common.Wrap(common.ErrVerificationFailed, err, "invalid recursive proof")
	}

	if proof.Circuit != params.Circuit {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "proof circuit %s does not match params circuit %s", proof.Circuit, params.Circuit)
	}

	if proof.Steps != steps {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "proof folds %d steps; expected %d", proof.Steps, steps)
	}

	if !proof.Z0.Equal(z0) {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "proof start state does not match z0")
	}

	if !proof.Zn.Equal(fs.Output) || proof.Steps != fs.Steps {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "fold state output does not match its proof")
	}

	return proof.Zn, nil
}

func (e *NativeEngine) requireParams(circuit *CircuitDef, params *PublicParams) (fr.Element, error) {
	var key fr.Element

	if circuit == nil || params == nil {
		return key, common.Wrap(common.ErrEngine, nil, "circuit and public params are required")
	}

	if params.Engine != e.Name() || params.Circuit != circuit.Digest {
		return key, common.Wrap(common.ErrEngine, nil, "public params were not generated for circuit %s", circuit.Digest)
	}

	key, err := field.ParseElement(params.Key)
	if err != nil {
		return key, common.Wrap(common.ErrEngine, err, "invalid public params key")
	}

	return key, nil
}

// fold applies each input map as one step, advancing proof.Zn, proof.Steps
// and the accumulator
func (e *NativeEngine) fold(
	ctx context.Context,
	proof *nativeProof,
	calc WitnessCalculator,
	circuit *CircuitDef,
	inputs []map[string]interface{},
) error {
	if calc == nil {
		return common.Wrap(common.ErrEngine, nil, "no witness calculator")
	}

	acc, err := field.ParseElement(proof.Accumulator)
	if err != nil {
		return common.Wrap(common.ErrEngine, err, "invalid accumulator")
	}

	zi := proof.Zn
	for i := range inputs {
		stepInputs := make(map[string]interface{}, len(inputs[i])+1)
		for k, v := range inputs[i] {
			stepInputs[k] = v
		}
		stepInputs[StepInInput] = zi.Strings()

		assignment, err := calc.CalculateWitness(ctx, circuit, stepInputs)
		if err != nil {
			return common.Wrap(common.ErrEngine, err, "failed to calculate witness for step %d", proof.Steps+uint64(i))
		}

		elements, err := assignmentElements(assignment)
		if err != nil {
			return err
		}

		zNext, err := e.transition(elements, zi)
		if err != nil {
			return common.Wrap(common.ErrEngine, err, "step %d is not satisfied", proof.Steps+uint64(i))
		}

		digest := field.Hash(elements[1+2*state.Arity:]...)
		absorbed := append([]fr.Element{acc}, zi[:]...)
		absorbed = append(absorbed, digest)
		absorbed = append(absorbed, zNext[:]...)
		acc = field.Hash(absorbed...)

		zi = zNext
	}

	proof.Zn = zi
	proof.Steps += uint64(len(inputs))
	proof.Accumulator = field.String(acc)
	return nil
}

// transition checks the public state constraints of one step: the step
// consumed zi, the root is unchanged and the verified count grew by 0 or 1
func (e *NativeEngine) transition(elements []fr.Element, zi state.PublicOutput) (state.PublicOutput, error) {
	var zNext state.PublicOutput

	if len(elements) < 1+2*state.Arity || !elements[0].IsOne() {
		return zNext, common.Wrap(common.ErrEngine, nil, "malformed assignment of %d wires", len(elements))
	}

	copy(zNext[:], elements[1:1+state.Arity])

	var stepIn state.PublicOutput
	copy(stepIn[:], elements[1+state.Arity:1+2*state.Arity])
	if !stepIn.Equal(zi) {
		return zNext, common.Wrap(common.ErrEngine, nil, "step input does not match the prior output")
	}

	if !zNext[state.RootIndex].Equal(&zi[state.RootIndex]) {
		return zNext, common.Wrap(common.ErrEngine, nil, "root changed")
	}

	var delta fr.Element
	delta.Sub(&zNext[state.VerifiedIndex], &zi[state.VerifiedIndex])
	if !delta.IsZero() && !delta.IsOne() {
		return zNext, common.Wrap(common.ErrEngine, nil, "verified count must grow by 0 or 1")
	}

	return zNext, nil
}

func assignmentElements(assignment []*big.Int) ([]fr.Element, error) {
	q := fr.Modulus()
	elements := make([]fr.Element, len(assignment))
	for i := range assignment {
		if assignment[i] == nil || assignment[i].Sign() < 0 || assignment[i].Cmp(q) >= 0 {
			return nil, common.Wrap(common.ErrEngine, nil, "assignment wire %d is not a field element", i)
		}
		elements[i].SetBigInt(assignment[i])
	}
	return elements, nil
}

func (e *NativeEngine) sealDigest(proof *nativeProof, paramsKey fr.Element) (fr.Element, error) {
	acc, err := field.ParseElement(proof.Accumulator)
	if err != nil {
		return fr.Element{}, err
	}

	var steps fr.Element
	steps.SetUint64(proof.Steps)

	absorbed := append([]fr.Element{paramsKey}, proof.Z0[:]...)
	absorbed = append(absorbed, proof.Zn[:]...)
	absorbed = append(absorbed, steps, acc)
	return field.Hash(absorbed...), nil
}

func (e *NativeEngine) seal(fs *state.FoldState, proof *nativeProof, paramsKey fr.Element) error {
	seal, err := e.sealDigest(proof, paramsKey)
	if err != nil {
		return common.Wrap(common.ErrEngine, err, "failed to seal recursive proof")
	}
	proof.Seal = field.String(seal)

	raw, err := json.Marshal(proof)
	if err != nil {
		return common.Wrap(common.ErrEngine, err, "failed to marshal recursive proof")
	}

	fs.Proof = raw
	fs.Output = proof.Zn
	fs.Steps = proof.Steps
	return nil
}

func (e *NativeEngine) unseal(fs *state.FoldState, paramsKey fr.Element) (*nativeProof, error) {
	if fs == nil || len(fs.Proof) == 0 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "empty recursive proof")
	}

	var proof nativeProof
	err := json.Unmarshal(fs.Proof, &proof)
	if err != nil {
		return nil, common.Wrap(common.ErrMalformedInput, err, "failed to unmarshal recursive proof")
	}

	if proof.Engine != e.Name() {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "proof was produced by the %s engine", proof.Engine)
	}

	seal, err := e.sealDigest(&proof, paramsKey)
	if err != nil {
		return nil, err
	}

	claimed, err := field.ParseElement(proof.Seal)
	if err != nil || !claimed.Equal(&seal) {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "recursive proof seal is invalid")
	}

	return &proof, nil
}
