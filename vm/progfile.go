package vm

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Program files
// ---------------------------------------------------------------------------

// A program file is the on-disk form of a compiled module: a four-byte
// magic, a version byte, then a canonical-CBOR body carrying the module
// name and the code object tree. Canonical encoding keeps images
// byte-stable so they can be content-hashed by the module store.

const (
	progMagic = "MPRG"
	// ProgVersion is the current program file format version.
	ProgVersion = 1
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type programImage struct {
	Module string     `cbor:"1,keyasint"`
	Code   *codeImage `cbor:"2,keyasint"`
}

type codeImage struct {
	Name      string       `cbor:"1,keyasint"`
	QualName  string       `cbor:"2,keyasint,omitempty"`
	Params    []paramImage `cbor:"3,keyasint,omitempty"`
	Flags     uint8        `cbor:"4,keyasint,omitempty"`
	NumLocals int          `cbor:"5,keyasint,omitempty"`
	CellVars  []string     `cbor:"6,keyasint,omitempty"`
	FreeVars  []string     `cbor:"7,keyasint,omitempty"`
	Names     []string     `cbor:"8,keyasint,omitempty"`
	Bytecode  []byte       `cbor:"9,keyasint"`
	Constants []constImage `cbor:"10,keyasint,omitempty"`
}

type paramImage struct {
	Name string `cbor:"1,keyasint"`
	Kind uint8  `cbor:"2,keyasint,omitempty"`
}

type constImage struct {
	Kind  uint8        `cbor:"1,keyasint"`
	Int   int64        `cbor:"2,keyasint,omitempty"`
	Float float64      `cbor:"3,keyasint,omitempty"`
	Str   string       `cbor:"4,keyasint,omitempty"`
	Items []constImage `cbor:"5,keyasint,omitempty"`
	Code  *codeImage   `cbor:"6,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// EncodeProgram serializes a module's code tree into program file bytes.
func EncodeProgram(module string, code *Code) ([]byte, error) {
	img, err := imageFromCode(code)
	if err != nil {
		return nil, err
	}
	body, err := cborEncMode.Marshal(&programImage{Module: module, Code: img})
	if err != nil {
		return nil, fmt.Errorf("progfile: encode body: %w", err)
	}
	out := make([]byte, 0, len(progMagic)+1+len(body))
	out = append(out, progMagic...)
	out = append(out, ProgVersion)
	out = append(out, body...)
	return out, nil
}

// WriteProgram writes a program file to w.
func WriteProgram(w io.Writer, module string, code *Code) error {
	data, err := EncodeProgram(module, code)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("progfile: write: %w", err)
	}
	return nil
}

// WriteProgramFile writes a program file at path.
func WriteProgramFile(path, module string, code *Code) error {
	data, err := EncodeProgram(module, code)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("progfile: write %s: %w", path, err)
	}
	return nil
}

func imageFromCode(code *Code) (*codeImage, error) {
	if code == nil {
		return nil, fmt.Errorf("progfile: nil code object")
	}
	img := &codeImage{
		Name:      code.Name,
		QualName:  code.QualName,
		Flags:     uint8(code.Flags),
		NumLocals: code.NumLocals,
		CellVars:  code.CellVars,
		FreeVars:  code.FreeVars,
		Names:     code.Names,
		Bytecode:  code.Bytecode,
	}
	for _, p := range code.Params {
		img.Params = append(img.Params, paramImage{Name: p.Name, Kind: uint8(p.Kind)})
	}
	for i, c := range code.Constants {
		ci, err := imageFromConst(c)
		if err != nil {
			return nil, fmt.Errorf("progfile: constant %d of %s: %w", i, code.QualName, err)
		}
		img.Constants = append(img.Constants, ci)
	}
	return img, nil
}

func imageFromConst(v Value) (constImage, error) {
	switch v.Kind() {
	case KindNone:
		return constImage{Kind: uint8(KindNone)}, nil
	case KindBool:
		n := int64(0)
		if v.Bool() {
			n = 1
		}
		return constImage{Kind: uint8(KindBool), Int: n}, nil
	case KindInt:
		return constImage{Kind: uint8(KindInt), Int: v.Int()}, nil
	case KindFloat:
		return constImage{Kind: uint8(KindFloat), Float: v.Float()}, nil
	case KindStr:
		return constImage{Kind: uint8(KindStr), Str: v.Str()}, nil
	case KindTuple:
		img := constImage{Kind: uint8(KindTuple)}
		for _, item := range v.Tuple().Items() {
			ci, err := imageFromConst(item)
			if err != nil {
				return constImage{}, err
			}
			img.Items = append(img.Items, ci)
		}
		return img, nil
	case KindCode:
		ci, err := imageFromCode(v.Code())
		if err != nil {
			return constImage{}, err
		}
		return constImage{Kind: uint8(KindCode), Code: ci}, nil
	default:
		return constImage{}, fmt.Errorf("unsupported constant kind %s", v.TypeName())
	}
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// DecodeProgram parses program file bytes, verifying the header and the
// decoded bytecode before returning it.
func DecodeProgram(data []byte) (string, *Code, error) {
	if len(data) < len(progMagic)+1 {
		return "", nil, fmt.Errorf("progfile: short header (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(progMagic)], []byte(progMagic)) {
		return "", nil, fmt.Errorf("progfile: bad magic %q", data[:len(progMagic)])
	}
	if v := data[len(progMagic)]; v != ProgVersion {
		return "", nil, fmt.Errorf("progfile: unsupported version %d", v)
	}
	var img programImage
	if err := cbor.Unmarshal(data[len(progMagic)+1:], &img); err != nil {
		return "", nil, fmt.Errorf("progfile: decode body: %w", err)
	}
	if img.Module == "" {
		return "", nil, fmt.Errorf("progfile: empty module name")
	}
	code, err := codeFromImage(img.Code)
	if err != nil {
		return "", nil, err
	}
	if err := VerifyCode(code); err != nil {
		return "", nil, fmt.Errorf("progfile: %w", err)
	}
	return img.Module, code, nil
}

// ReadProgram reads a program file from r.
func ReadProgram(r io.Reader) (string, *Code, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("progfile: read: %w", err)
	}
	return DecodeProgram(data)
}

// ReadProgramFile reads a program file at path.
func ReadProgramFile(path string) (string, *Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("progfile: read %s: %w", path, err)
	}
	return DecodeProgram(data)
}

func codeFromImage(img *codeImage) (*Code, error) {
	if img == nil {
		return nil, fmt.Errorf("progfile: missing code object")
	}
	if img.Flags&^uint8(FlagGenerator|FlagCoroutine) != 0 {
		return nil, fmt.Errorf("progfile: unknown code flags 0x%02X in %s", img.Flags, img.Name)
	}
	code := &Code{
		Name:      img.Name,
		QualName:  img.QualName,
		Flags:     CodeFlags(img.Flags),
		NumLocals: img.NumLocals,
		CellVars:  img.CellVars,
		FreeVars:  img.FreeVars,
		Names:     img.Names,
		Bytecode:  img.Bytecode,
	}
	for _, p := range img.Params {
		if p.Kind > uint8(ParamVarKeyword) {
			return nil, fmt.Errorf("progfile: unknown parameter kind %d in %s", p.Kind, img.Name)
		}
		code.Params = append(code.Params, Param{Name: p.Name, Kind: ParamKind(p.Kind)})
	}
	for i, ci := range img.Constants {
		v, err := constFromImage(ci)
		if err != nil {
			return nil, fmt.Errorf("progfile: constant %d of %s: %w", i, img.Name, err)
		}
		code.Constants = append(code.Constants, v)
	}
	return code, nil
}

func constFromImage(img constImage) (Value, error) {
	switch Kind(img.Kind) {
	case KindNone:
		return None, nil
	case KindBool:
		return MakeBool(img.Int != 0), nil
	case KindInt:
		return MakeInt(img.Int), nil
	case KindFloat:
		return MakeFloat(img.Float), nil
	case KindStr:
		return MakeStr(img.Str), nil
	case KindTuple:
		items := make([]Value, 0, len(img.Items))
		for _, ci := range img.Items {
			v, err := constFromImage(ci)
			if err != nil {
				return None, err
			}
			items = append(items, v)
		}
		return MakeTuple(NewTuple(items)), nil
	case KindCode:
		code, err := codeFromImage(img.Code)
		if err != nil {
			return None, err
		}
		return MakeCode(code), nil
	default:
		return None, fmt.Errorf("unsupported constant kind %d", img.Kind)
	}
}
