package providers

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/zkp/field"
	"github.com/provideplatform/fold/zkp/lib/circuits/gnark"
	"golang.org/x/crypto/sha3"
)

// compressionCurve is the curve the groth16 compression proofs are produced on
const compressionCurve = ecc.BN254

// compile returns the compression constraint system, compiling it on first use
func (e *NativeEngine) compile() (constraint.ConstraintSystem, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.ccs != nil {
		return e.ccs, nil
	}

	ccs, err := frontend.Compile(compressionCurve.ScalarField(), r1cs.NewBuilder, &gnark.FoldCompressionCircuit{})
	if err != nil {
		common.Log.Warningf("failed to compile fold compression circuit to r1cs using gnark; %s", err.Error())
		return nil, common.Wrap(common.ErrEngine, err, "failed to compile fold compression circuit")
	}

	common.Log.Debugf("compiled fold compression circuit; %d constraints", ccs.GetNbConstraints())
	e.ccs = ccs
	return ccs, nil
}

func (e *NativeEngine) decodeProvingKey(pk *ProverKey) (groth16.ProvingKey, error) {
	provingKey := groth16.NewProvingKey(compressionCurve)
	n, err := provingKey.ReadFrom(bytes.NewReader(pk.Key))
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "unable to decode proving key")
	}

	common.Log.Tracef("read %d bytes during proving key deserialization", n)
	return provingKey, nil
}

func (e *NativeEngine) decodeVerifyingKey(vk *VerifierKey) (groth16.VerifyingKey, error) {
	verifyingKey := groth16.NewVerifyingKey(compressionCurve)
	n, err := verifyingKey.ReadFrom(bytes.NewReader(vk.Key))
	if err != nil {
		return nil, common.Wrap(common.ErrVerificationFailed, err, "unable to decode verifying key")
	}

	common.Log.Tracef("read %d bytes during verifying key deserialization", n)
	return verifyingKey, nil
}

func (e *NativeEngine) decodeProof(proof []byte) (groth16.Proof, error) {
	prf := groth16.NewProof(compressionCurve)
	_, err := prf.ReadFrom(bytes.NewReader(proof))
	if err != nil {
		return nil, common.Wrap(common.ErrVerificationFailed, err, "unable to decode compressed proof")
	}
	return prf, nil
}

// SetupCompression runs the groth16 setup of the compression circuit and binds
// the resulting keys to the given params
func (e *NativeEngine) SetupCompression(ctx context.Context, params *PublicParams) (*ProverKey, *VerifierKey, error) {
	if params == nil || params.Engine != e.Name() {
		return nil, nil, common.Wrap(common.ErrEngine, nil, "failed to setup compression; params were not generated by the %s engine", e.Name())
	}

	ccs, err := e.compile()
	if err != nil {
		return nil, nil, err
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, common.Wrap(common.ErrEngine, err, "failed to setup compression keys")
	}

	pkbuf := new(bytes.Buffer)
	_, err = pk.WriteTo(pkbuf)
	if err != nil {
		return nil, nil, common.Wrap(common.ErrEngine, err, "failed to serialize proving key")
	}

	vkbuf := new(bytes.Buffer)
	_, err = vk.WriteTo(vkbuf)
	if err != nil {
		return nil, nil, common.Wrap(common.ErrEngine, err, "failed to serialize verifying key")
	}

	setup := sha3.Sum256(vkbuf.Bytes())
	common.Log.Debugf("derived %d-byte proving key and %d-byte verifying key for circuit %s", pkbuf.Len(), vkbuf.Len(), params.Circuit)

	return &ProverKey{
			Engine:  e.Name(),
			Circuit: params.Circuit,
			Params:  params.Key,
			Setup:   hex.EncodeToString(setup[:]),
			Key:     pkbuf.Bytes(),
		}, &VerifierKey{
			Engine:  e.Name(),
			Circuit: params.Circuit,
			Params:  params.Key,
			Setup:   hex.EncodeToString(setup[:]),
			Key:     vkbuf.Bytes(),
		}, nil
}

// CompressProof proves knowledge of the accumulator behind the sealed fold
func (e *NativeEngine) CompressProof(ctx context.Context, fs *state.FoldState, params *PublicParams, pk *ProverKey) (*CompressedProof, error) {
	if pk == nil || params == nil || pk.Params != params.Key {
		return nil, common.Wrap(common.ErrEngine, nil, "failed to compress proof; proving key was not derived from the given params")
	}

	paramsKey, err := field.ParseElement(params.Key)
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "invalid public params key")
	}

	proof, err := e.unseal(fs, paramsKey)
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "failed to compress proof")
	}

	var z0 state.PublicOutput
	z0[state.RootIndex] = proof.Z0.Root()
	if !proof.Z0.Equal(z0) {
		return nil, common.Wrap(common.ErrEngine, nil, "failed to compress proof; fold did not start at [root, 0, 0, 0]")
	}

	acc, err := field.ParseElement(proof.Accumulator)
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "invalid accumulator")
	}

	ccs, err := e.compile()
	if err != nil {
		return nil, err
	}

	provingKey, err := e.decodeProvingKey(pk)
	if err != nil {
		return nil, err
	}

	assignment := compressionAssignment(paramsKey, proof.Zn, proof.Steps, proof.Seal)
	if assignment == nil {
		return nil, common.Wrap(common.ErrEngine, nil, "invalid recursive proof seal")
	}
	assignment.Accumulator = acc.BigInt(new(big.Int))

	witness, err := frontend.NewWitness(assignment, compressionCurve.ScalarField())
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "failed to build compression witness")
	}

	prf, err := groth16.Prove(ccs, provingKey, witness)
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "failed to prove fold compression")
	}

	buf := new(bytes.Buffer)
	_, err = prf.WriteTo(buf)
	if err != nil {
		return nil, common.Wrap(common.ErrEngine, err, "failed to serialize compressed proof")
	}

	return &CompressedProof{
		Engine:  e.Name(),
		Circuit: proof.Circuit,
		Params:  params.Key,
		Output:  proof.Zn,
		Steps:   proof.Steps,
		Seal:    proof.Seal,
		Proof:   buf.Bytes(),
	}, nil
}

// VerifyCompressedProof verifies a compressed proof against the verifying key,
// the claimed step count and z0, and returns z_n
func (e *NativeEngine) VerifyCompressedProof(proof *CompressedProof, vk *VerifierKey, steps uint64, z0 state.PublicOutput) (state.PublicOutput, error) {
	var zn state.PublicOutput

	if proof == nil || vk == nil {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "compressed proof and verifying key are required")
	}

	if proof.Engine != e.Name() || vk.Engine != e.Name() || proof.Params != vk.Params || proof.Circuit != vk.Circuit {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "compressed proof was not produced under the given verifying key")
	}

	if proof.Steps != steps {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "compressed proof folds %d steps; expected %d", proof.Steps, steps)
	}

	var expected state.PublicOutput
	expected[state.RootIndex] = z0.Root()
	if !z0.Equal(expected) {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "compressed proofs only attest folds starting at [root, 0, 0, 0]")
	}

	paramsKey, err := field.ParseElement(vk.Params)
	if err != nil {
		return zn, common.Wrap(common.ErrVerificationFailed, err, "invalid verifying key params")
	}

	out := proof.Output
	out[state.RootIndex] = z0.Root()
	publicAssignment := compressionAssignment(paramsKey, out, steps, proof.Seal)
	if publicAssignment == nil {
		return zn, common.Wrap(common.ErrVerificationFailed, nil, "invalid compressed proof seal")
	}

	publicWitness, err := frontend.NewWitness(publicAssignment, compressionCurve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return zn, common.Wrap(common.ErrVerificationFailed, err, "failed to build public witness")
	}

	prf, err := e.decodeProof(proof.Proof)
	if err != nil {
		return zn, err
	}

	verifyingKey, err := e.decodeVerifyingKey(vk)
	if err != nil {
		return zn, err
	}

	err = groth16.Verify(prf, verifyingKey, publicWitness)
	if err != nil {
		return zn, common.Wrap(common.ErrVerificationFailed, err, "compressed proof rejected")
	}

	return out, nil
}

// compressionAssignment returns the public part of the compression circuit
// assignment, or nil when the seal is not a field element
func compressionAssignment(paramsKey fr.Element, zn state.PublicOutput, steps uint64, seal string) *gnark.FoldCompressionCircuit {
	s, err := field.ParseBigInt(seal)
	if err != nil {
		return nil
	}

	return &gnark.FoldCompressionCircuit{
		ParamsDigest: paramsKey.BigInt(new(big.Int)),
		Root:         zn[state.RootIndex].BigInt(new(big.Int)),
		PubKeyNR:     zn[state.PubKeyNullifierIndex].BigInt(new(big.Int)),
		SigNR:        zn[state.SigNullifierIndex].BigInt(new(big.Int)),
		Verified:     zn[state.VerifiedIndex].BigInt(new(big.Int)),
		Steps:        new(big.Int).SetUint64(steps),
		Seal:         s,
		Accumulator:  0,
	}
}
