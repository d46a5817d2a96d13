package clarity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// maxDepth bounds nesting when deserializing untrusted input
const maxDepth = 64

var (
	two128 = new(big.Int).Lsh(big.NewInt(1), 128)
	two127 = new(big.Int).Lsh(big.NewInt(1), 127)
)

// ErrTruncated is returned when the input ends inside a value
var ErrTruncated = errors.New("clarity: unexpected end of input")

// Serialize encodes a value in the consensus wire format
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeHex encodes a value as lowercase hex without a prefix
func SerializeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Deserialize decodes exactly one value from data
func Deserialize(data []byte) (Value, error) {
	r := &decoder{data: data}
	v, err := r.value(0)
	if err != nil {
		return nil, err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("clarity: %d trailing bytes", len(data)-r.pos)
	}
	return v, nil
}

// DeserializeHex decodes a hex string, with or without a 0x prefix
func DeserializeHex(s string) (Value, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("clarity: invalid hex: %w", err)
	}
	return Deserialize(data)
}

func writeValue(buf *bytes.Buffer, v Value) error {
	if v == nil {
		return errors.New("clarity: nil value")
	}
	buf.WriteByte(byte(v.Type()))

	switch val := v.(type) {
	case Int:
		if val.V == nil {
			return fmt.Errorf("clarity: nil int")
		}
		n := new(big.Int).Set(val.V)
		if n.Cmp(two127) >= 0 || n.Cmp(new(big.Int).Neg(two127)) < 0 {
			return fmt.Errorf("clarity: int out of range: %s", n)
		}
		if n.Sign() < 0 {
			n.Add(n, two128)
		}
		write128(buf, n)
	case UInt:
		if val.V == nil {
			return fmt.Errorf("clarity: nil uint")
		}
		if val.V.Sign() < 0 || val.V.Cmp(two128) >= 0 {
			return fmt.Errorf("clarity: uint out of range: %s", val.V)
		}
		write128(buf, val.V)
	case Buffer:
		writeLen32(buf, len(val))
		buf.Write(val)
	case Bool:
	case StandardPrincipal:
		buf.WriteByte(val.Version)
		buf.Write(val.Hash160[:])
	case ContractPrincipal:
		if len(val.Name) == 0 || len(val.Name) > 128 {
			return fmt.Errorf("clarity: invalid contract name length %d", len(val.Name))
		}
		buf.WriteByte(val.Issuer.Version)
		buf.Write(val.Issuer.Hash160[:])
		buf.WriteByte(byte(len(val.Name)))
		buf.WriteString(val.Name)
	case ResponseOk:
		return writeValue(buf, val.Value)
	case ResponseErr:
		return writeValue(buf, val.Value)
	case None:
	case Some:
		return writeValue(buf, val.Value)
	case List:
		writeLen32(buf, len(val))
		for _, item := range val {
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
	case Tuple:
		writeLen32(buf, len(val))
		for _, k := range val.Keys() {
			if len(k) == 0 || len(k) > 128 {
				return fmt.Errorf("clarity: invalid tuple key %q", k)
			}
			buf.WriteByte(byte(len(k)))
			buf.WriteString(k)
			if err := writeValue(buf, val[k]); err != nil {
				return err
			}
		}
	case StringASCII:
		writeLen32(buf, len(val))
		buf.WriteString(string(val))
	case StringUTF8:
		writeLen32(buf, len(val))
		buf.WriteString(string(val))
	default:
		return fmt.Errorf("clarity: unsupported value %T", v)
	}
	return nil
}

func write128(buf *bytes.Buffer, n *big.Int) {
	var out [16]byte
	n.FillBytes(out[:])
	buf.Write(out[:])
}

func writeLen32(buf *bytes.Buffer, n int) {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], uint32(n))
	buf.Write(out[:])
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, ErrTruncated
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) byte1() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) len32() (int, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	if int(n) > len(d.data)-d.pos {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (d *decoder) standardPrincipal() (StandardPrincipal, error) {
	var p StandardPrincipal
	b, err := d.take(21)
	if err != nil {
		return p, err
	}
	p.Version = b[0]
	copy(p.Hash160[:], b[1:])
	return p, nil
}

func (d *decoder) name() (string, error) {
	n, err := d.byte1()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, errors.New("clarity: value nested too deeply")
	}
	prefix, err := d.byte1()
	if err != nil {
		return nil, err
	}

	switch Type(prefix) {
	case TypeInt:
		b, err := d.take(16)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(b)
		if n.Cmp(two127) >= 0 {
			n.Sub(n, two128)
		}
		return Int{V: n}, nil
	case TypeUInt:
		b, err := d.take(16)
		if err != nil {
			return nil, err
		}
		return UInt{V: new(big.Int).SetBytes(b)}, nil
	case TypeBuffer:
		n, err := d.len32()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return Buffer(append([]byte(nil), b...)), nil
	case TypeTrue:
		return Bool(true), nil
	case TypeFalse:
		return Bool(false), nil
	case TypeStandardPrincipal:
		return d.standardPrincipal()
	case TypeContractPrincipal:
		issuer, err := d.standardPrincipal()
		if err != nil {
			return nil, err
		}
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return ContractPrincipal{Issuer: issuer, Name: name}, nil
	case TypeResponseOk:
		inner, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return ResponseOk{Value: inner}, nil
	case TypeResponseErr:
		inner, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return ResponseErr{Value: inner}, nil
	case TypeNone:
		return None{}, nil
	case TypeSome:
		inner, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return Some{Value: inner}, nil
	case TypeList:
		n, err := d.len32()
		if err != nil {
			return nil, err
		}
		list := make(List, 0, n)
		for i := 0; i < n; i++ {
			item, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case TypeTuple:
		n, err := d.len32()
		if err != nil {
			return nil, err
		}
		tuple := make(Tuple, n)
		for i := 0; i < n; i++ {
			key, err := d.name()
			if err != nil {
				return nil, err
			}
			item, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			tuple[key] = item
		}
		return tuple, nil
	case TypeStringASCII:
		n, err := d.len32()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return StringASCII(b), nil
	case TypeStringUTF8:
		n, err := d.len32()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return StringUTF8(b), nil
	default:
		return nil, fmt.Errorf("clarity: unknown type prefix 0x%02x", prefix)
	}
}
