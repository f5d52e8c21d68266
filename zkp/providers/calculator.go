package providers

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/field"
)

// MembershipStepCalculator evaluates the membership step function natively.
// An active step absorbs the public key point into the pubkey nullifier
// randomness, the signature into the signature nullifier randomness, and
// increments the verified count; a chaff step passes its step input through.
// The signature and accumulator path are checked for well-formedness only.
type MembershipStepCalculator struct{}

// InitMembershipStepCalculator initializes the native membership witness calculator
func InitMembershipStepCalculator() *MembershipStepCalculator {
	return &MembershipStepCalculator{}
}

// CalculateWitness returns [1, step_out..., step_in..., inputs...]
func (c *MembershipStepCalculator) CalculateWitness(ctx context.Context, circuit *CircuitDef, inputs map[string]interface{}) ([]*big.Int, error) {
	if circuit == nil {
		return nil, common.Wrap(common.ErrEngine, nil, "no circuit to calculate witness for")
	}

	w, err := witness.FromInputs(inputs)
	if err != nil {
		return nil, err
	}

	err = w.Validate(circuit.Depth)
	if err != nil {
		return nil, err
	}

	stepIn, err := parseStepIn(inputs[StepInInput])
	if err != nil {
		return nil, err
	}

	elements, err := w.Elements()
	if err != nil {
		return nil, err
	}
	s, tx, ty, ux, uy := elements[0], elements[1], elements[2], elements[3], elements[4]

	stepOut := stepIn
	if w.Active {
		stepOut[state.PubKeyNullifierIndex] = field.Hash(stepIn[state.PubKeyNullifierIndex], ux, uy)
		stepOut[state.SigNullifierIndex] = field.Hash(stepIn[state.SigNullifierIndex], s, tx, ty)

		var one fr.Element
		one.SetOne()
		stepOut[state.VerifiedIndex].Add(&stepIn[state.VerifiedIndex], &one)
	}

	assignment := make([]*big.Int, 0, 1+2*state.Arity+len(elements))
	assignment = append(assignment, big.NewInt(1))
	for _, zs := range []state.PublicOutput{stepOut, stepIn} {
		for i := range zs {
			assignment = append(assignment, zs[i].BigInt(new(big.Int)))
		}
	}
	for i := range elements {
		assignment = append(assignment, elements[i].BigInt(new(big.Int)))
	}

	return assignment, nil
}

func parseStepIn(val interface{}) (state.PublicOutput, error) {
	var z state.PublicOutput
	if val == nil {
		return z, common.Wrap(common.ErrMalformedInput, nil, "missing %s input", StepInInput)
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return z, common.Wrap(common.ErrMalformedInput, err, "failed to marshal %s input", StepInInput)
	}

	err = json.Unmarshal(raw, &z)
	if err != nil {
		return z, common.Wrap(common.ErrMalformedInput, err, "invalid %s input", StepInInput)
	}

	return z, nil
}
