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

// Package field encodes and decodes BN254 scalar field elements in the
// numeral and byte formats used by the membership circuit.
package field

import (
	"io"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/provideplatform/fold/common"
)

// Bytes is the width of the canonical byte encoding of an element
const Bytes = 32

// topByteMask clears the bits above the 254-bit modulus when sampling
const topByteMask = 0x3f

// Modulus returns the BN254 scalar field modulus
func Modulus() *big.Int {
	return fr.Modulus()
}

// ParseBigInt parses a decimal, or 0x-prefixed hexadecimal, numeral and
// requires it to be a canonical field element
func ParseBigInt(numeral string) (*big.Int, error) {
	s := strings.TrimSpace(numeral)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}

	if s == "" {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "empty field element numeral")
	}

	i, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "failed to parse field element numeral %s", numeral)
	}

	if i.Sign() < 0 || i.Cmp(fr.Modulus()) >= 0 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "field element numeral %s is out of range", numeral)
	}

	return i, nil
}

// ParseElement parses a numeral into a field element
func ParseElement(numeral string) (fr.Element, error) {
	var e fr.Element
	i, err := ParseBigInt(numeral)
	if err != nil {
		return e, err
	}
	e.SetBigInt(i)
	return e, nil
}

// ParseElements parses each numeral in order
func ParseElements(numerals []string) ([]fr.Element, error) {
	elements := make([]fr.Element, len(numerals))
	for i := range numerals {
		e, err := ParseElement(numerals[i])
		if err != nil {
			return nil, err
		}
		elements[i] = e
	}
	return elements, nil
}

// ParseRoot converts a decimal root numeral to the element's canonical
// little-endian 32-byte representation, zero padded on the high end
func ParseRoot(root string) ([Bytes]byte, error) {
	var out [Bytes]byte

	s := strings.TrimSpace(root)
	i, ok := new(big.Int).SetString(s, 10)
	if !ok || s == "" {
		return out, common.Wrap(common.ErrMalformedRoot, nil, "failed to parse root %s as a decimal numeral", root)
	}

	if i.Sign() < 0 || i.Cmp(fr.Modulus()) >= 0 {
		return out, common.Wrap(common.ErrMalformedRoot, nil, "root %s exceeds the field modulus", root)
	}

	be := i.Bytes()
	for j := range be {
		out[j] = be[len(be)-1-j]
	}

	return out, nil
}

// FromLittleEndian decodes a canonical little-endian encoding
func FromLittleEndian(b [Bytes]byte) (fr.Element, error) {
	var e fr.Element

	be := make([]byte, Bytes)
	for j := range b {
		be[Bytes-1-j] = b[j]
	}

	i := new(big.Int).SetBytes(be)
	if i.Cmp(fr.Modulus()) >= 0 {
		return e, common.Wrap(common.ErrMalformedInput, nil, "non-canonical field element encoding")
	}

	e.SetBigInt(i)
	return e, nil
}

// ToLittleEndian returns the canonical little-endian encoding of e
func ToLittleEndian(e fr.Element) [Bytes]byte {
	var out [Bytes]byte
	be := e.Bytes()
	for j := range be {
		out[j] = be[Bytes-1-j]
	}
	return out
}

// String returns the decimal numeral of e
func String(e fr.Element) string {
	return e.BigInt(new(big.Int)).String()
}

// Strings returns the decimal numerals of the given elements
func Strings(elements []fr.Element) []string {
	numerals := make([]string, len(elements))
	for i := range elements {
		numerals[i] = String(elements[i])
	}
	return numerals
}

// Random samples a uniformly random element by rejection from src
func Random(src io.Reader) (fr.Element, error) {
	var e fr.Element
	q := fr.Modulus()

	for {
		b, err := common.RandomBytes(src, Bytes)
		if err != nil {
			return e, err
		}
		b[0] &= topByteMask

		i := new(big.Int).SetBytes(b)
		if i.Cmp(q) < 0 {
			e.SetBigInt(i)
			return e, nil
		}
	}
}

// RandomBit samples a uniformly random bit from src
func RandomBit(src io.Reader) (uint8, error) {
	b, err := common.RandomBytes(src, 1)
	if err != nil {
		return 0, err
	}
	return b[0] % 2, nil
}

// Hash returns the MiMC digest of the given elements, absorbed in order
func Hash(elements ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range elements {
		b := elements[i].Bytes()
		h.Write(b[:]) // canonical blocks are always accepted
	}

	var digest fr.Element
	digest.SetBytes(h.Sum(nil))
	return digest
}
