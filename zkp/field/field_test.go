package field

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/provideplatform/fold/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const referenceRoot = "1799182282238172949735919814155076722550339245418717182904975644657694908682"

func TestParseElement(t *testing.T) {
	q := fr.Modulus()
	qMinusOne := new(big.Int).Sub(q, big.NewInt(1))

	cases := []struct {
		name    string
		numeral string
		want    string
		err     bool
	}{
		{"zero", "0", "0", false},
		{"decimal", "42", "42", false},
		{"hex", "0x2a", "42", false},
		{"upper hex prefix", "0X2A", "42", false},
		{"padded", "  7 ", "7", false},
		{"largest", qMinusOne.String(), qMinusOne.String(), false},
		{"modulus", q.String(), "", true},
		{"negative", "-1", "", true},
		{"empty", "", "", true},
		{"bare prefix", "0x", "", true},
		{"garbage", "12ab", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := ParseElement(tc.numeral)
			if tc.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrMalformedInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, String(e))
		})
	}
}

func TestParseRoot(t *testing.T) {
	le, err := ParseRoot(referenceRoot)
	require.NoError(t, err)

	want, _ := new(big.Int).SetString(referenceRoot, 10)
	be := make([]byte, Bytes)
	for i := range le {
		be[Bytes-1-i] = le[i]
	}
	assert.Equal(t, 0, want.Cmp(new(big.Int).SetBytes(be)))

	e, err := FromLittleEndian(le)
	require.NoError(t, err)
	assert.Equal(t, referenceRoot, String(e))
	assert.Equal(t, le, ToLittleEndian(e))
}

func TestParseRootSmallValueIsZeroPaddedHigh(t *testing.T) {
	le, err := ParseRoot("258")
	require.NoError(t, err)

	assert.Equal(t, byte(0x02), le[0])
	assert.Equal(t, byte(0x01), le[1])
	for i := 2; i < Bytes; i++ {
		assert.Equal(t, byte(0), le[i])
	}
}

func TestParseRootRejectsMalformed(t *testing.T) {
	for _, root := range []string{"", "abc", "0x10", "-5", fr.Modulus().String()} {
		_, err := ParseRoot(root)
		require.Error(t, err, root)
		assert.True(t, errors.Is(err, common.ErrMalformedRoot), root)
		assert.True(t, errors.Is(err, common.ErrMalformedInput), root)
	}
}

func TestFromLittleEndianRejectsNonCanonical(t *testing.T) {
	var b [Bytes]byte
	for i := range b {
		b[i] = 0xff
	}
	_, err := FromLittleEndian(b)
	assert.True(t, errors.Is(err, common.ErrMalformedInput))
}

func TestRandom(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		e, err := Random(rand.Reader)
		require.NoError(t, err)

		_, err = ParseElement(String(e))
		require.NoError(t, err)
		seen[String(e)] = true
	}
	assert.Len(t, seen, 16)
}

func TestRandomRejectsOutOfRangeSamples(t *testing.T) {
	high := bytes.Repeat([]byte{0xff}, Bytes)
	low := append([]byte{0x00}, bytes.Repeat([]byte{0x01}, Bytes-1)...)

	e, err := Random(bytes.NewReader(append(high, low...)))
	require.NoError(t, err)
	assert.Equal(t, 0, new(big.Int).SetBytes(low).Cmp(e.BigInt(new(big.Int))))
}

func TestRandomFailsOnShortRead(t *testing.T) {
	_, err := Random(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRandomness))

	_, err = RandomBit(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, common.ErrRandomness))
}

func TestHashIsOrderSensitive(t *testing.T) {
	var a, b fr.Element
	a.SetUint64(1)
	b.SetUint64(2)

	ab := Hash(a, b)
	ba := Hash(b, a)
	again := Hash(a, b)

	assert.True(t, ab.Equal(&again))
	assert.False(t, ab.Equal(&ba))
}
