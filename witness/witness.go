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

// Package witness models a single membership claim and its encoding as the
// named input map consumed by the folded membership circuit.
package witness

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/zkp/field"
)

// circuit input names
const (
	InputS           = "s"
	InputTx          = "Tx"
	InputTy          = "Ty"
	InputUx          = "Ux"
	InputUy          = "Uy"
	InputPathIndices = "pathIndices"
	InputSiblings    = "siblings"
	InputActive      = "active"
)

// InputNames lists the circuit inputs in assignment order
var InputNames = []string{
	InputS,
	InputTx,
	InputTy,
	InputUx,
	InputUy,
	InputPathIndices,
	InputSiblings,
	InputActive,
}

const activeFlag = "1"
const inactiveFlag = "0"

// PathBits is an ordered list of Merkle path direction bits; bit 0 means the
// current node is the left child at that level
type PathBits []uint8

// MarshalJSON encodes the bits as a JSON array of numbers
func (p PathBits) MarshalJSON() ([]byte, error) {
	bits := make([]int, len(p))
	for i := range p {
		bits[i] = int(p[i])
	}
	return json.Marshal(bits)
}

// UnmarshalJSON accepts an array of numbers or numeric strings
func (p *PathBits) UnmarshalJSON(raw []byte) error {
	var vals []json.RawMessage
	err := json.Unmarshal(raw, &vals)
	if err != nil {
		return common.Wrap(common.ErrMalformedInput, err, "failed to unmarshal path indices")
	}

	bits := make(PathBits, len(vals))
	for i := range vals {
		s, err := numeral(vals[i])
		if err != nil {
			return err
		}
		bit, err := parseBit(s)
		if err != nil {
			return err
		}
		bits[i] = bit
	}

	*p = bits
	return nil
}

// Witness is one membership claim: the signature scalar s, the ephemeral
// commitment T, the public-key-derived point U and the accumulator path of
// the signing key
type Witness struct {
	S           string   `json:"s"`
	Tx          string   `json:"Tx"`
	Ty          string   `json:"Ty"`
	Ux          string   `json:"Ux"`
	Uy          string   `json:"Uy"`
	PathIndices PathBits `json:"pathIndices"`
	Siblings    []string `json:"siblings"`
	Active      bool     `json:"active"`
}

// ParseMembership decodes a membership document; a document which omits the
// active flag describes a real membership
func ParseMembership(raw []byte) (*Witness, error) {
	type membership Witness
	m := &struct {
		membership
		Active *bool `json:"active"`
	}{}

	err := json.Unmarshal(raw, m)
	if err != nil {
		return nil, common.Wrap(common.ErrMalformedInput, err, "failed to unmarshal membership")
	}

	w := Witness(m.membership)
	w.Active = m.Active == nil || *m.Active
	return &w, nil
}

// Depth returns the accumulator depth this witness was built for
func (w *Witness) Depth() int {
	return len(w.PathIndices)
}

// Validate checks the witness against the given accumulator depth
func (w *Witness) Validate(depth int) error {
	if w == nil {
		return common.Wrap(common.ErrMalformedInput, nil, "witness required")
	}

	if len(w.PathIndices) != depth {
		return common.Wrap(common.ErrMalformedInput, nil, "witness requires %d path indices; got %d", depth, len(w.PathIndices))
	}

	if len(w.Siblings) != depth {
		return common.Wrap(common.ErrMalformedInput, nil, "witness requires %d siblings; got %d", depth, len(w.Siblings))
	}

	for i, bit := range w.PathIndices {
		if bit > 1 {
			return common.Wrap(common.ErrMalformedInput, nil, "path index %d is not a bit: %d", i, bit)
		}
	}

	_, err := w.Elements()
	return err
}

// Elements parses the witness into its flat field assignment, in InputNames
// order: s, Tx, Ty, Ux, Uy, the path bits, the siblings and the active flag
func (w *Witness) Elements() ([]fr.Element, error) {
	numerals := []string{w.S, w.Tx, w.Ty, w.Ux, w.Uy}
	elements := make([]fr.Element, 0, len(numerals)+2*len(w.PathIndices)+1)

	for i := range numerals {
		e, err := field.ParseElement(numerals[i])
		if err != nil {
			return nil, fmt.Errorf("%w; invalid %s", err, InputNames[i])
		}
		elements = append(elements, e)
	}

	for _, bit := range w.PathIndices {
		var e fr.Element
		e.SetUint64(uint64(bit))
		elements = append(elements, e)
	}

	for i := range w.Siblings {
		e, err := field.ParseElement(w.Siblings[i])
		if err != nil {
			return nil, fmt.Errorf("%w; invalid sibling %d", err, i)
		}
		elements = append(elements, e)
	}

	var active fr.Element
	if w.Active {
		active.SetOne()
	}

	return append(elements, active), nil
}

// ToEngineInputs returns the named circuit inputs, each wrapped as a single
// element sequence; path indices and siblings become a one element sequence
// of depth-length sequences
func (w *Witness) ToEngineInputs() map[string]interface{} {
	bits := make([]string, len(w.PathIndices))
	for i := range w.PathIndices {
		bits[i] = strconv.Itoa(int(w.PathIndices[i]))
	}

	active := inactiveFlag
	if w.Active {
		active = activeFlag
	}

	return map[string]interface{}{
		InputS:           []string{w.S},
		InputTx:          []string{w.Tx},
		InputTy:          []string{w.Ty},
		InputUx:          []string{w.Ux},
		InputUy:          []string{w.Uy},
		InputPathIndices: [][]string{bits},
		InputSiblings:    [][]string{append([]string{}, w.Siblings...)},
		InputActive:      []string{active},
	}
}

// FromInputs parses a named circuit input map, in either the form produced by
// ToEngineInputs or its JSON decoding
func FromInputs(inputs map[string]interface{}) (*Witness, error) {
	raw, err := json.Marshal(inputs)
	if err != nil {
		return nil, common.Wrap(common.ErrMalformedInput, err, "failed to marshal engine inputs")
	}

	var vals map[string]json.RawMessage
	err = json.Unmarshal(raw, &vals)
	if err != nil {
		return nil, common.Wrap(common.ErrMalformedInput, err, "failed to unmarshal engine inputs")
	}

	w := &Witness{}
	scalars := map[string]*string{
		InputS:  &w.S,
		InputTx: &w.Tx,
		InputTy: &w.Ty,
		InputUx: &w.Ux,
		InputUy: &w.Uy,
	}

	for name, dst := range scalars {
		*dst, err = singleton(vals, name)
		if err != nil {
			return nil, err
		}
	}

	bits, err := nested(vals, InputPathIndices)
	if err != nil {
		return nil, err
	}
	w.PathIndices = make(PathBits, len(bits))
	for i := range bits {
		w.PathIndices[i], err = parseBit(bits[i])
		if err != nil {
			return nil, err
		}
	}

	w.Siblings, err = nested(vals, InputSiblings)
	if err != nil {
		return nil, err
	}

	active, err := singleton(vals, InputActive)
	if err != nil {
		return nil, err
	}
	switch active {
	case activeFlag:
		w.Active = true
	case inactiveFlag:
		w.Active = false
	default:
		return nil, common.Wrap(common.ErrMalformedInput, nil, "active flag must be 0 or 1; got %s", active)
	}

	return w, nil
}

func singleton(vals map[string]json.RawMessage, name string) (string, error) {
	raw, ok := vals[name]
	if !ok {
		return "", common.Wrap(common.ErrMalformedInput, nil, "missing engine input %s", name)
	}

	var seq []json.RawMessage
	err := json.Unmarshal(raw, &seq)
	if err != nil || len(seq) != 1 {
		return "", common.Wrap(common.ErrMalformedInput, nil, "engine input %s must be a single element sequence", name)
	}

	return numeral(seq[0])
}

func nested(vals map[string]json.RawMessage, name string) ([]string, error) {
	raw, ok := vals[name]
	if !ok {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "missing engine input %s", name)
	}

	var seq [][]json.RawMessage
	err := json.Unmarshal(raw, &seq)
	if err != nil || len(seq) != 1 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "engine input %s must be a single element sequence of sequences", name)
	}

	numerals := make([]string, len(seq[0]))
	for i := range seq[0] {
		numerals[i], err = numeral(seq[0][i])
		if err != nil {
			return nil, err
		}
	}
	return numerals, nil
}

// numeral reads a JSON string or number as a numeral without going through
// float64
func numeral(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "\"") {
		var str string
		err := json.Unmarshal(raw, &str)
		if err != nil {
			return "", common.Wrap(common.ErrMalformedInput, err, "failed to unmarshal numeral")
		}
		return str, nil
	}

	var n json.Number
	err := json.Unmarshal(raw, &n)
	if err != nil {
		return "", common.Wrap(common.ErrMalformedInput, err, "expected a numeral; got %s", s)
	}
	return n.String(), nil
}

func parseBit(s string) (uint8, error) {
	switch strings.TrimSpace(s) {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	}
	return 0, common.Wrap(common.ErrMalformedInput, nil, "path index must be 0 or 1; got %s", s)
}
