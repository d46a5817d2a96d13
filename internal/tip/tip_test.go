package tip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	assert.Equal(t, DefaultKey, Key(""))
	assert.Equal(t, DefaultKey, Key("  "))
	assert.Equal(t, hash, Key(hash))
	assert.Equal(t, hash, Key("0x"+hash))
	assert.Equal(t, hash, Key("0X"+strings.ToUpper(hash)))
}

func TestWireTip(t *testing.T) {
	assert.Equal(t, "", WireTip(DefaultKey))
	assert.Equal(t, "abcd", WireTip(Key("0xabcd")))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(""))
	assert.NoError(t, Validate("0x"+strings.Repeat("0f", 32)))
	assert.Error(t, Validate("0x1234"))
	assert.Error(t, Validate(strings.Repeat("zz", 32)))
}
