package gnark

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// FoldCompressionCircuit proves knowledge of the accumulator behind a sealed
// fold whose public state started at [Root, 0, 0, 0] and ended at
// [Root, PubKeyNR, SigNR, Verified] after Steps steps
type FoldCompressionCircuit struct {
	ParamsDigest frontend.Variable `gnark:",public"`
	Root         frontend.Variable `gnark:",public"`
	PubKeyNR     frontend.Variable `gnark:",public"`
	SigNR        frontend.Variable `gnark:",public"`
	Verified     frontend.Variable `gnark:",public"`
	Steps        frontend.Variable `gnark:",public"`
	Seal         frontend.Variable `gnark:",public"`

	Accumulator frontend.Variable // hash chain over every step; known to the prover only
}

// Define the fold compression circuit
func (circuit *FoldCompressionCircuit) Define(api frontend.API) error {
	mimc, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// z0 is [Root, 0, 0, 0]; the root never changes across a fold
	mimc.Write(
		circuit.ParamsDigest,
		circuit.Root, 0, 0, 0,
		circuit.Root, circuit.PubKeyNR, circuit.SigNR, circuit.Verified,
		circuit.Steps,
		circuit.Accumulator,
	)
	api.AssertIsEqual(circuit.Seal, mimc.Sum())

	api.AssertIsLessOrEqual(circuit.Verified, circuit.Steps)
	return nil
}
