package reader

import (
	"fmt"

	"stxbatch/internal/batcher"
	"stxbatch/internal/clarity"
)

// Decoders returns the per-category decoders used by readers
func Decoders() batcher.Decoders {
	return batcher.Decoders{
		Variable: clarity.DeserializeHex,
		MapEntry: DecodeMapEntry,
		Readonly: clarity.DeserializeHex,
	}
}

// DecodeMapEntry decodes a map lookup, which must be an optional
func DecodeMapEntry(raw string) (clarity.Value, error) {
	v, err := clarity.DeserializeHex(raw)
	if err != nil {
		return nil, err
	}
	if _, err := unwrapMapEntry(v); err != nil {
		return nil, err
	}
	return v, nil
}

// unwrapMapEntry maps none to nil and (some v) to v.
// ReadMap applies it too, so coalescers without Decoders() still reject non-optionals.
func unwrapMapEntry(v clarity.Value) (clarity.Value, error) {
	switch opt := v.(type) {
	case clarity.None:
		return nil, nil
	case clarity.Some:
		return opt.Value, nil
	default:
		return nil, fmt.Errorf("unexpected map value: %s", typeName(v))
	}
}
