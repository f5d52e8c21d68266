package providers

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/provideplatform/fold/state"
)

// EngineProviderNative the native hash-chained folding engine
const EngineProviderNative = "native"

// StepInInput names the engine-supplied public step input in a witness input map
const StepInInput = "step_in"

// CircuitDef is a loaded step circuit
type CircuitDef struct {
	Name   string `json:"name"`
	Depth  int    `json:"depth"`
	Arity  int    `json:"arity"`
	Digest string `json:"digest,omitempty"`
}

// PublicParams are the engine parameters for one circuit version; read-only
// after generation
type PublicParams struct {
	Engine  string `json:"engine"`
	Circuit string `json:"circuit"`
	Depth   int    `json:"depth"`
	Arity   int    `json:"arity"`
	Key     string `json:"key"`
}

// ProverKey is the compression proving key derived from public params.
// Setup identifies the setup run; a proving and verifying key pair only
// when their Setup matches.
type ProverKey struct {
	Engine  string `json:"engine"`
	Circuit string `json:"circuit"`
	Params  string `json:"params"`
	Setup   string `json:"setup"`
	Key     []byte `json:"key"`
}

// VerifierKey is the compression verifying key derived from public params
type VerifierKey struct {
	Engine  string `json:"engine"`
	Circuit string `json:"circuit"`
	Params  string `json:"params"`
	Setup   string `json:"setup"`
	Key     []byte `json:"key"`
}

// CompressedProof is a succinct proof of a whole fold
type CompressedProof struct {
	Engine  string             `json:"engine"`
	Circuit string             `json:"circuit"`
	Params  string             `json:"params"`
	Output  state.PublicOutput `json:"output"`
	Steps   uint64             `json:"steps"`
	Seal    string             `json:"seal"`
	Proof   []byte             `json:"proof"`
}

// WitnessCalculator evaluates a step circuit over a named input map and
// returns the full assignment vector; wire 0 is the constant 1 and wires
// 1..arity hold the step output
type WitnessCalculator interface {
	CalculateWitness(ctx context.Context, circuit *CircuitDef, inputs map[string]interface{}) ([]*big.Int, error)
}

// Engine is a recursive proof engine; steps are strictly sequential per fold
// state but an engine is safe for concurrent use across fold states
type Engine interface {
	Name() string

	LoadCircuit(ctx context.Context, location string) (*CircuitDef, error)
	CreatePublicParams(ctx context.Context, circuit *CircuitDef) (*PublicParams, error)

	CreateRecursiveProof(
		ctx context.Context,
		calc WitnessCalculator,
		circuit *CircuitDef,
		inputs []map[string]interface{},
		z0 state.PublicOutput,
		params *PublicParams,
	) (*state.FoldState, error)

	// ContinueRecursiveProof appends one step per input map to fs in place
	ContinueRecursiveProof(
		ctx context.Context,
		fs *state.FoldState,
		prior state.PublicOutput,
		calc WitnessCalculator,
		circuit *CircuitDef,
		inputs []map[string]interface{},
		z0 state.PublicOutput,
		params *PublicParams,
	) error

	VerifyRecursiveProof(
		fs *state.FoldState,
		params *PublicParams,
		steps uint64,
		z0 state.PublicOutput,
		z0Secondary []fp.Element,
	) (state.PublicOutput, error)

	SetupCompression(ctx context.Context, params *PublicParams) (*ProverKey, *VerifierKey, error)
	CompressProof(ctx context.Context, fs *state.FoldState, params *PublicParams, pk *ProverKey) (*CompressedProof, error)
	VerifyCompressedProof(proof *CompressedProof, vk *VerifierKey, steps uint64, z0 state.PublicOutput) (state.PublicOutput, error)
}

// EngineFactory returns the engine for the given provider name
func EngineFactory(provider string) (Engine, error) {
	switch strings.ToLower(provider) {
	case EngineProviderNative, "":
		return InitNativeEngine(), nil
	default:
		return nil, fmt.Errorf("failed to resolve engine provider %s", provider)
	}
}
