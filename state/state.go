package state

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/zkp/field"
)

// Arity is the number of public state elements threaded through each fold step
const Arity = 4

// public state element positions
const (
	RootIndex = iota
	PubKeyNullifierIndex
	SigNullifierIndex
	VerifiedIndex
)

// PublicOutput is the public state of a fold: the accumulator root, the
// pubkey- and signature-nullifier randomness, and the verified count
type PublicOutput [Arity]fr.Element

// NewPublicOutput returns the initial public state z0 = [root, 0, 0, 0]
func NewPublicOutput(root fr.Element) PublicOutput {
	var z PublicOutput
	z[RootIndex] = root
	return z
}

// ParsePublicOutput parses exactly Arity numerals
func ParsePublicOutput(numerals []string) (PublicOutput, error) {
	var z PublicOutput
	if len(numerals) != Arity {
		return z, common.Wrap(common.ErrMalformedInput, nil, "public output requires %d elements; got %d", Arity, len(numerals))
	}

	for i := range numerals {
		e, err := field.ParseElement(numerals[i])
		if err != nil {
			return z, err
		}
		z[i] = e
	}

	return z, nil
}

// Root is the accumulator root the fold attests membership against
func (z PublicOutput) Root() fr.Element {
	return z[RootIndex]
}

// Verified returns the number of real memberships folded so far
func (z PublicOutput) Verified() *big.Int {
	return z[VerifiedIndex].BigInt(new(big.Int))
}

// Slice returns the elements as a slice, in order
func (z PublicOutput) Slice() []fr.Element {
	return append([]fr.Element{}, z[:]...)
}

// Strings returns the decimal numerals of the elements, in order
func (z PublicOutput) Strings() []string {
	return field.Strings(z[:])
}

// Equal returns true if both outputs hold the same elements
func (z PublicOutput) Equal(other PublicOutput) bool {
	for i := range z {
		if !z[i].Equal(&other[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the output as an array of decimal numerals
func (z PublicOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(z.Strings())
}

// UnmarshalJSON decodes an array of numerals
func (z *PublicOutput) UnmarshalJSON(raw []byte) error {
	var numerals []string
	err := json.Unmarshal(raw, &numerals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal public output; %s", err.Error())
	}

	out, err := ParsePublicOutput(numerals)
	if err != nil {
		return err
	}
	*z = out
	return nil
}

// FoldState is the running recursive proof of a fold session; it is owned by
// exactly one session and is only ever changed by a successful fold step
type FoldState struct {
	Proof  json.RawMessage `json:"proof"`
	Output PublicOutput    `json:"output"`
	Steps  uint64          `json:"steps"`
}

// Clone returns a deep copy of the fold state
func (fs *FoldState) Clone() *FoldState {
	clone := &FoldState{
		Output: fs.Output,
		Steps:  fs.Steps,
	}
	if fs.Proof != nil {
		clone.Proof = append(json.RawMessage{}, fs.Proof...)
	}
	return clone
}

// Commit replaces the receiver's contents with those of next
func (fs *FoldState) Commit(next *FoldState) {
	fs.Proof = next.Proof
	fs.Output = next.Output
	fs.Steps = next.Steps
}

// Root returns the root the session was started against
func (fs *FoldState) Root() fr.Element {
	return fs.Output.Root()
}
