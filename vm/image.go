package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Program images: CBOR wire format
// ---------------------------------------------------------------------------

// imageVersion is bumped on incompatible wire changes.
const imageVersion = 1

// cborEncMode is the canonical encoding mode, so identical programs always
// produce identical images and content hashes stay stable.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	cborEncMode = em
}

// wireValue is the serialized form of a constant-pool Value. Function
// values cannot appear in images: a closure is meaningless outside the
// State that assembled it.
type wireValue struct {
	Kind  uint8                `cbor:"k"`
	Int   int32                `cbor:"i,omitempty"`
	Float float32              `cbor:"f,omitempty"`
	Bool  bool                 `cbor:"b,omitempty"`
	Str   string               `cbor:"s,omitempty"`
	Arr   []wireValue          `cbor:"a,omitempty"`
	Dict  map[string]wireValue `cbor:"d,omitempty"`
}

// wireInstruction mirrors Instruction field for field.
type wireInstruction struct {
	Op uint16 `cbor:"o"`
	A  uint16 `cbor:"a"`
	B  uint16 `cbor:"b"`
	C  uint16 `cbor:"c"`
}

// wireProgram is the top-level image layout.
type wireProgram struct {
	Version   int               `cbor:"v"`
	Constants []wireValue       `cbor:"k"`
	Code      []wireInstruction `cbor:"c"`
	Comments  []string          `cbor:"m"`
}

// EncodeProgram serializes a program into a canonical CBOR image.
func EncodeProgram(p *Program) ([]byte, error) {
	wp := wireProgram{
		Version:   imageVersion,
		Constants: make([]wireValue, 0, len(p.Constants)),
		Code:      make([]wireInstruction, 0, len(p.Code)),
		Comments:  make([]string, 0, len(p.Data)),
	}
	for i, k := range p.Constants {
		wv, err := encodeValue(k)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		wp.Constants = append(wp.Constants, wv)
	}
	for _, insn := range p.Code {
		wp.Code = append(wp.Code, wireInstruction{
			Op: uint16(insn.Op), A: insn.A, B: insn.B, C: insn.C,
		})
	}
	for _, data := range p.Data {
		wp.Comments = append(wp.Comments, data.Comment)
	}
	return cborEncMode.Marshal(wp)
}

// DecodeProgram rebuilds a program from its CBOR image.
func DecodeProgram(data []byte) (*Program, error) {
	var wp wireProgram
	if err := cbor.Unmarshal(data, &wp); err != nil {
		return nil, fmt.Errorf("decoding program image: %w", err)
	}
	if wp.Version != imageVersion {
		return nil, fmt.Errorf("unsupported image version %d", wp.Version)
	}
	if len(wp.Comments) != len(wp.Code) {
		return nil, fmt.Errorf("image has %d comments for %d instructions",
			len(wp.Comments), len(wp.Code))
	}

	p := NewProgram()
	for i, wv := range wp.Constants {
		v, err := decodeValue(wv)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		p.Constants = append(p.Constants, v)
	}
	for i, wi := range wp.Code {
		p.Code = append(p.Code, Instruction{Op: Opcode(wi.Op), A: wi.A, B: wi.B, C: wi.C})
		p.Data = append(p.Data, InstructionData{Comment: wp.Comments[i]})
	}
	return p, nil
}

func encodeValue(v Value) (wireValue, error) {
	wv := wireValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case KindNil:
	case KindInt:
		wv.Int = v.Int()
	case KindFloat:
		wv.Float = v.Float()
	case KindBool:
		wv.Bool = v.Bool()
	case KindString:
		wv.Str = v.Str().String()
	case KindArray:
		arr := v.Array()
		last := -1
		for i := 0; i < arr.Cap(); i++ {
			if !arr.Get(i).IsNil() {
				last = i
			}
		}
		for i := 0; i <= last; i++ {
			ev, err := encodeValue(*arr.Get(i))
			if err != nil {
				return wireValue{}, err
			}
			wv.Arr = append(wv.Arr, ev)
		}
	case KindDict:
		dict := v.Dict()
		wv.Dict = make(map[string]wireValue)
		for i := 0; ; i++ {
			node := dict.entryAt(i)
			if node == nil {
				break
			}
			if !node.used || node.value.IsNil() {
				continue
			}
			ev, err := encodeValue(node.value)
			if err != nil {
				return wireValue{}, err
			}
			wv.Dict[node.key] = ev
		}
	case KindFunction:
		return wireValue{}, fmt.Errorf("cannot encode a function value")
	}
	return wv, nil
}

func decodeValue(wv wireValue) (Value, error) {
	switch ValueKind(wv.Kind) {
	case KindNil:
		return NilValue(), nil
	case KindInt:
		return IntValue(wv.Int), nil
	case KindFloat:
		return FloatValue(wv.Float), nil
	case KindBool:
		return BoolValue(wv.Bool), nil
	case KindString:
		return StringValue(NewString(wv.Str)), nil
	case KindArray:
		arr := NewArray()
		for i, ev := range wv.Arr {
			elem, err := decodeValue(ev)
			if err != nil {
				return NilValue(), err
			}
			arr.Set(i, elem)
		}
		return ArrayValue(arr), nil
	case KindDict:
		dict := NewDict()
		for key, ev := range wv.Dict {
			elem, err := decodeValue(ev)
			if err != nil {
				return NilValue(), err
			}
			dict.Set(key, elem)
		}
		return DictValue(dict), nil
	}
	return NilValue(), fmt.Errorf("invalid value kind %d", wv.Kind)
}
