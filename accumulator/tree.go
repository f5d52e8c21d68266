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

package accumulator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/field"
)

// Tree is a fixed-depth binary merkle tree over BN254 scalars hashed with
// MiMC. Empty slots hold zero and empty subtrees hash to the zero hash of
// their level.
type Tree struct {
	depth int
	zeros []fr.Element
	nodes [][]fr.Element
	mutex sync.RWMutex
}

// NewTree returns an empty tree of the given depth
func NewTree(depth int) (*Tree, error) {
	if depth < 1 || depth > 32 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "unsupported tree depth %d", depth)
	}

	zeros := make([]fr.Element, depth+1)
	for i := 1; i <= depth; i++ {
		zeros[i] = field.Hash(zeros[i-1], zeros[i-1])
	}

	return &Tree{
		depth: depth,
		zeros: zeros,
		nodes: make([][]fr.Element, depth+1),
	}, nil
}

// Depth returns the depth of the tree
func (t *Tree) Depth() int {
	return t.depth
}

// Capacity returns the number of leaves the tree can hold
func (t *Tree) Capacity() int {
	return 1 << uint(t.depth)
}

// Length returns the count of the tree leaves
func (t *Tree) Length() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.nodes[0])
}

// LeafFromPublicKey hashes the affine coordinates of a public key into a leaf
func LeafFromPublicKey(x, y string) (fr.Element, error) {
	coords, err := field.ParseElements([]string{x, y})
	if err != nil {
		return fr.Element{}, err
	}
	return field.Hash(coords[0], coords[1]), nil
}

// Insert pushes leaf into the next free slot, rehashes its path to the root
// and returns the slot index
func (t *Tree) Insert(leaf fr.Element) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	index := len(t.nodes[0])
	if index >= t.Capacity() {
		return 0, common.Wrap(common.ErrMalformedInput, nil, "tree of depth %d is full", t.depth)
	}

	t.nodes[0] = append(t.nodes[0], leaf)
	t.propagateChange(index)
	return index, nil
}

// InsertPublicKey inserts the leaf of the given public key
func (t *Tree) InsertPublicKey(x, y string) (int, error) {
	leaf, err := LeafFromPublicKey(x, y)
	if err != nil {
		return 0, err
	}
	return t.Insert(leaf)
}

func (t *Tree) propagateChange(index int) {
	for level := 0; level < t.depth; level++ {
		left, right := t.pair(level, index)
		parent := field.Hash(left, right)

		index /= 2
		if index == len(t.nodes[level+1]) {
			t.nodes[level+1] = append(t.nodes[level+1], parent)
		} else {
			t.nodes[level+1][index] = parent
		}
	}
}

// pair returns the left and right children of the pair containing index
func (t *Tree) pair(level, index int) (fr.Element, fr.Element) {
	left := index &^ 1
	return t.node(level, left), t.node(level, left+1)
}

func (t *Tree) node(level, index int) fr.Element {
	if index < len(t.nodes[level]) {
		return t.nodes[level][index]
	}
	return t.zeros[level]
}

// Root returns the current root
func (t *Tree) Root() fr.Element {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.node(t.depth, 0)
}

// RootString returns the current root as a decimal numeral
func (t *Tree) RootString() string {
	return field.String(t.Root())
}

// Proof returns the path bits and siblings proving the leaf at index; bit i
// is 0 when the node at level i is a left child
func (t *Tree) Proof(index int) (witness.PathBits, []string, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if index < 0 || index >= len(t.nodes[0]) {
		return nil, nil, common.Wrap(common.ErrMalformedInput, nil, "leaf index %d out of bounds", index)
	}

	pathIndices := make(witness.PathBits, t.depth)
	siblings := make([]string, t.depth)
	for level := 0; level < t.depth; level++ {
		pathIndices[level] = uint8(index % 2)
		siblings[level] = field.String(t.node(level, index^1))
		index /= 2
	}

	return pathIndices, siblings, nil
}

// Verify recomputes the root from leaf and its path
func Verify(leaf fr.Element, pathIndices witness.PathBits, siblings []string, root fr.Element) (bool, error) {
	if len(pathIndices) != len(siblings) {
		return false, common.Wrap(common.ErrMalformedInput, nil, "path has %d bits but %d siblings", len(pathIndices), len(siblings))
	}

	nodes, err := field.ParseElements(siblings)
	if err != nil {
		return false, err
	}

	current := leaf
	for i, sibling := range nodes {
		switch pathIndices[i] {
		case 0:
			current = field.Hash(current, sibling)
		case 1:
			current = field.Hash(sibling, current)
		default:
			return false, common.Wrap(common.ErrMalformedInput, nil, "path index %d is not a bit", i)
		}
	}

	return current.Equal(&root), nil
}

// MembershipWitness fills an active membership witness for the leaf at index
// with the given signature values
func (t *Tree) MembershipWitness(index int, s, tx, ty, ux, uy string) (*witness.Witness, error) {
	pathIndices, siblings, err := t.Proof(index)
	if err != nil {
		return nil, err
	}

	return &witness.Witness{
		S:           s,
		Tx:          tx,
		Ty:          ty,
		Ux:          ux,
		Uy:          uy,
		PathIndices: pathIndices,
		Siblings:    siblings,
		Active:      true,
	}, nil
}

// String returns human readable version of the tree
func (t *Tree) String() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	b := strings.Builder{}
	for i := t.depth; i >= 0; i-- {
		b.WriteString(fmt.Sprintf("Level: %v, Count: %v\n", i, len(t.nodes[i])))
		for k := range t.nodes[i] {
			b.WriteString(fmt.Sprintf("%v\t", field.String(t.nodes[i][k])))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// MarshalJSON returns the root, depth and length of the tree
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"root":   t.RootString(),
		"depth":  t.depth,
		"length": t.Length(),
	})
}
