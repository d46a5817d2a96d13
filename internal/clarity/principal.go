package clarity

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions
const (
	VersionMainnetSingleSig byte = 22
	VersionMainnetMultiSig  byte = 20
	VersionTestnetSingleSig byte = 26
	VersionTestnetMultiSig  byte = 21
)

// ErrInvalidAddress is returned for malformed c32check addresses
var ErrInvalidAddress = errors.New("clarity: invalid address")

// Address renders the principal as a c32check address (e.g. SP...)
func (p StandardPrincipal) Address() string {
	if int(p.Version) >= len(c32Alphabet) {
		return fmt.Sprintf("S?%x", p.Hash160[:])
	}
	payload := append([]byte{p.Version}, p.Hash160[:]...)
	sum := checksum(payload)
	data := append(append([]byte(nil), p.Hash160[:]...), sum[:]...)
	return "S" + string(c32Alphabet[p.Version]) + c32Encode(data)
}

// ParseAddress decodes a c32check address into a standard principal
func ParseAddress(addr string) (StandardPrincipal, error) {
	var p StandardPrincipal
	if len(addr) < 3 || addr[0] != 'S' {
		return p, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	body := normalizeC32(addr[1:])
	version := strings.IndexByte(c32Alphabet, body[0])
	if version < 0 {
		return p, fmt.Errorf("%w: bad version in %q", ErrInvalidAddress, addr)
	}
	data, err := c32Decode(body[1:])
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(data) != 24 {
		return p, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, addr, len(data))
	}
	p.Version = byte(version)
	copy(p.Hash160[:], data[:20])

	sum := checksum(append([]byte{p.Version}, p.Hash160[:]...))
	if string(sum[:]) != string(data[20:]) {
		return p, fmt.Errorf("%w: checksum mismatch for %q", ErrInvalidAddress, addr)
	}
	return p, nil
}

// ParseContractID parses "ADDRESS.contract-name"
func ParseContractID(id string) (ContractPrincipal, error) {
	addr, name, ok := strings.Cut(id, ".")
	if !ok || name == "" {
		return ContractPrincipal{}, fmt.Errorf("clarity: contract id %q must be ADDRESS.name", id)
	}
	issuer, err := ParseAddress(addr)
	if err != nil {
		return ContractPrincipal{}, err
	}
	if len(name) > 128 {
		return ContractPrincipal{}, fmt.Errorf("clarity: contract name too long in %q", id)
	}
	return ContractPrincipal{Issuer: issuer, Name: name}, nil
}

// ParsePrincipal parses either a standard or a contract principal
func ParsePrincipal(s string) (Value, error) {
	if strings.Contains(s, ".") {
		return ParseContractID(s)
	}
	return ParseAddress(s)
}

func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

func normalizeC32(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}

// c32Encode is a big-endian base-32 encoding where each leading zero byte
// becomes a single leading '0'.
func c32Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}
	var sb strings.Builder
	sb.WriteString(strings.Repeat("0", zeros))
	n := new(big.Int).SetBytes(data)
	if n.Sign() == 0 {
		return sb.String()
	}
	for _, c := range n.Text(32) {
		sb.WriteByte(c32Alphabet[strings.IndexRune("0123456789abcdefghijklmnopqrstuv", c)])
	}
	return sb.String()
}

func c32Decode(s string) ([]byte, error) {
	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}
	n := new(big.Int)
	base := big.NewInt(32)
	for i := zeros; i < len(s); i++ {
		idx := strings.IndexByte(c32Alphabet, s[i])
		if idx < 0 {
			return nil, fmt.Errorf("invalid c32 character %q", s[i])
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return append(make([]byte, zeros), n.Bytes()...), nil
}

// PrincipalCache memoizes the hex serialization of contract ids. Serialization
// is deterministic, so entries never go stale.
type PrincipalCache struct {
	cache *lru.Cache[string, string]
}

// NewPrincipalCache creates a cache holding up to size contract ids
func NewPrincipalCache(size int) (*PrincipalCache, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &PrincipalCache{cache: cache}, nil
}

// ContractHex returns the serialized hex form of a contract principal
func (pc *PrincipalCache) ContractHex(c ContractPrincipal) (string, error) {
	key := c.String()
	if encoded, ok := pc.cache.Get(key); ok {
		return encoded, nil
	}
	encoded, err := SerializeHex(c)
	if err != nil {
		return "", err
	}
	pc.cache.Add(key, encoded)
	return encoded, nil
}

// Len returns the number of cached entries
func (pc *PrincipalCache) Len() int {
	return pc.cache.Len()
}
