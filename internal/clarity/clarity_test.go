package clarity

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bootAddress = "SP000000000000000000002Q6VF78"

func TestParseAddress_BootAddress(t *testing.T) {
	p, err := ParseAddress(bootAddress)
	require.NoError(t, err)

	assert.Equal(t, VersionMainnetSingleSig, p.Version)
	assert.Equal(t, [20]byte{}, p.Hash160)
	assert.Equal(t, bootAddress, p.Address())
}

func TestParseAddress_Invalid(t *testing.T) {
	cases := []string{
		"",
		"XP000000000000000000002Q6VF78",
		"SP000000000000000000002Q6VF79",
		"SP00000000000000000000",
	}
	for _, addr := range cases {
		_, err := ParseAddress(addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %q", addr)
	}
}

func TestParseContractID(t *testing.T) {
	c, err := ParseContractID(bootAddress + ".pox-4")
	require.NoError(t, err)
	assert.Equal(t, "pox-4", c.Name)
	assert.Equal(t, bootAddress+".pox-4", c.String())

	_, err = ParseContractID(bootAddress)
	assert.Error(t, err)
}

func TestSerialize_Vectors(t *testing.T) {
	cases := []struct {
		name  string
		value Value
		want  string
	}{
		{"uint", NewUInt(1), "0100000000000000000000000000000001"},
		{"int negative", NewInt(-1), "00ffffffffffffffffffffffffffffffff"},
		{"true", Bool(true), "03"},
		{"none", None{}, "09"},
		{"some false", Some{Value: Bool(false)}, "0a04"},
		{"ok uint", ResponseOk{Value: NewUInt(2)}, "070100000000000000000000000000000002"},
		{"buffer", Buffer{0xde, 0xad}, "0200000002dead"},
		{"ascii", StringASCII("hi"), "0d000000026869"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SerializeHex(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSerialize_ContractPrincipal(t *testing.T) {
	c, err := ParseContractID(bootAddress + ".pox-4")
	require.NoError(t, err)

	got, err := SerializeHex(c)
	require.NoError(t, err)
	want := "0616" + strings.Repeat("00", 20) + "05" + "706f782d34"
	assert.Equal(t, want, got)
}

func TestDeserialize_Nested(t *testing.T) {
	issuer, err := ParseAddress(bootAddress)
	require.NoError(t, err)

	original := Tuple{
		"balance": NewUInt(1_000_000),
		"owner":   issuer,
		"history": List{NewInt(-5), NewInt(7)},
		"label":   Some{Value: StringUTF8("héllo")},
		"status":  ResponseErr{Value: NewUInt(404)},
	}

	encoded, err := SerializeHex(original)
	require.NoError(t, err)

	decoded, err := DeserializeHex("0x" + encoded)
	require.NoError(t, err)

	tuple, ok := decoded.(Tuple)
	require.True(t, ok)
	assert.Equal(t, 0, tuple["balance"].(UInt).V.Cmp(big.NewInt(1_000_000)))
	assert.Equal(t, issuer, tuple["owner"])
	assert.Equal(t, "(list -5 7)", tuple["history"].String())
	assert.Equal(t, Some{Value: StringUTF8("héllo")}, tuple["label"])
	assert.Equal(t, "(err u404)", tuple["status"].String())
}

func TestDeserialize_Errors(t *testing.T) {
	_, err := DeserializeHex("01ff")
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DeserializeHex("0303")
	assert.Error(t, err)

	_, err = DeserializeHex("ff")
	assert.Error(t, err)

	_, err = DeserializeHex("zz")
	assert.Error(t, err)
}

func TestSerialize_IntRange(t *testing.T) {
	tooBig := Int{V: new(big.Int).Lsh(big.NewInt(1), 127)}
	_, err := Serialize(tooBig)
	assert.Error(t, err)

	_, err = Serialize(UInt{V: big.NewInt(-1)})
	assert.Error(t, err)

	// zero values carry a nil *big.Int
	_, err = Serialize(Int{})
	assert.EqualError(t, err, "clarity: nil int")

	_, err = Serialize(Some{Value: UInt{}})
	assert.EqualError(t, err, "clarity: nil uint")
}

func TestPrincipalCache(t *testing.T) {
	pc, err := NewPrincipalCache(2)
	require.NoError(t, err)

	c, err := ParseContractID(bootAddress + ".pox-4")
	require.NoError(t, err)

	first, err := pc.ContractHex(c)
	require.NoError(t, err)
	second, err := pc.ContractHex(c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, pc.Len())
}
