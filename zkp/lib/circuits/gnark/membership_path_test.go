package gnark

import (
	"fmt"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	"github.com/provideplatform/fold/accumulator"
	"github.com/stretchr/testify/require"
)

const pathDepth = 4

func membershipAssignment(t *testing.T, index int) *MembershipPathCircuit {
	tree, err := accumulator.NewTree(pathDepth)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := tree.InsertPublicKey(fmt.Sprintf("%d", 100+i), fmt.Sprintf("%d", 200+i))
		require.NoError(t, err)
	}

	pathIndices, siblings, err := tree.Proof(index)
	require.NoError(t, err)

	assignment := NewMembershipPathCircuit(pathDepth)
	assignment.Root = tree.RootString()
	assignment.Ux = fmt.Sprintf("%d", 100+index)
	assignment.Uy = fmt.Sprintf("%d", 200+index)
	for i := 0; i < pathDepth; i++ {
		assignment.PathIndices[i] = int(pathIndices[i])
		assignment.Siblings[i] = siblings[i]
	}

	return assignment
}

func TestMembershipPathCircuitAgreesWithAccumulator(t *testing.T) {
	for _, index := range []int{0, 3, 5} {
		require.NoError(t, test.IsSolved(NewMembershipPathCircuit(pathDepth), membershipAssignment(t, index), ecc.BN254.ScalarField()))
	}
}

func TestMembershipPathCircuitRejectsForeignKey(t *testing.T) {
	assignment := membershipAssignment(t, 2)
	assignment.Ux = "999"
	require.Error(t, test.IsSolved(NewMembershipPathCircuit(pathDepth), assignment, ecc.BN254.ScalarField()))
}

func TestMembershipPathCircuitRejectsWrongPath(t *testing.T) {
	assignment := membershipAssignment(t, 2)
	assignment.PathIndices[0] = 1
	require.Error(t, test.IsSolved(NewMembershipPathCircuit(pathDepth), assignment, ecc.BN254.ScalarField()))

	assignment = membershipAssignment(t, 2)
	assignment.PathIndices[1] = 2
	require.Error(t, test.IsSolved(NewMembershipPathCircuit(pathDepth), assignment, ecc.BN254.ScalarField()))
}
