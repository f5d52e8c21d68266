package witness

import (
	"io"

	"github.com/provideplatform/fold/zkp/field"
)

// NewChaff synthesizes an inert witness: uniformly random s, T, U and
// siblings, random path bits and the active flag cleared. The coordinates
// are not on the curve; a chaff step is never asserted to be a valid
// signature. A nil src reads from crypto/rand. Failure to read randomness is
// returned and never retried.
func NewChaff(depth int, src io.Reader) (*Witness, error) {
	scalars := make([]string, 5)
	for i := range scalars {
		e, err := field.Random(src)
		if err != nil {
			return nil, err
		}
		scalars[i] = field.String(e)
	}

	w := &Witness{
		S:           scalars[0],
		Tx:          scalars[1],
		Ty:          scalars[2],
		Ux:          scalars[3],
		Uy:          scalars[4],
		PathIndices: make(PathBits, depth),
		Siblings:    make([]string, depth),
		Active:      false,
	}

	for i := 0; i < depth; i++ {
		bit, err := field.RandomBit(src)
		if err != nil {
			return nil, err
		}
		w.PathIndices[i] = bit

		sibling, err := field.Random(src)
		if err != nil {
			return nil, err
		}
		w.Siblings[i] = field.String(sibling)
	}

	return w, nil
}

// Chaff returns the engine inputs of a freshly synthesized chaff witness
func Chaff(depth int, src io.Reader) (map[string]interface{}, error) {
	w, err := NewChaff(depth, src)
	if err != nil {
		return nil, err
	}
	return w.ToEngineInputs(), nil
}
