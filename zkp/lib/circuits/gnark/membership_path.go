package gnark

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// MembershipPathCircuit proves the public key (Ux, Uy) is a leaf of the
// accumulator with the given Root. Bit i of PathIndices is 0 when the node
// at level i is a left child.
type MembershipPathCircuit struct {
	Root frontend.Variable `gnark:",public"`

	Ux          frontend.Variable
	Uy          frontend.Variable
	PathIndices []frontend.Variable
	Siblings    []frontend.Variable
}

// NewMembershipPathCircuit allocates a circuit for an accumulator of the given depth
func NewMembershipPathCircuit(depth int) *MembershipPathCircuit {
	return &MembershipPathCircuit{
		PathIndices: make([]frontend.Variable, depth),
		Siblings:    make([]frontend.Variable, depth),
	}
}

// Define the membership path circuit
func (circuit *MembershipPathCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(circuit.Ux, circuit.Uy)
	current := h.Sum()

	for i := range circuit.Siblings {
		api.AssertIsBoolean(circuit.PathIndices[i])
		left := api.Select(circuit.PathIndices[i], circuit.Siblings[i], current)
		right := api.Select(circuit.PathIndices[i], current, circuit.Siblings[i])

		h.Reset()
		h.Write(left, right)
		current = h.Sum()
	}

	api.AssertIsEqual(circuit.Root, current)
	return nil
}
