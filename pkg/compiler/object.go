package compiler

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"gobf/pkg/cpu"
)

// ObjectMagic tags every compiled program file.
const ObjectMagic = "GOBF"

// ObjectVersion is bumped whenever the instruction encoding changes.
const ObjectVersion = 1

var (
	ErrBadMagic   = errors.New("not a compiled gobf program")
	ErrBadVersion = errors.New("unsupported compiled program version")
)

// Object is a compiled program as written by the -out flag.
type Object struct {
	Magic        string            `cbor:"magic"`
	Version      int               `cbor:"version"`
	Level        int               `cbor:"level"`
	Fingerprint  []byte            `cbor:"fingerprint"`
	Instructions []cpu.Instruction `cbor:"instructions"`
}

var objectEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR enc mode: %v", err))
	}
	objectEncMode = em
}

// Fingerprint returns the BLAKE3-256 digest of src.
func Fingerprint(src string) []byte {
	sum := blake3.Sum256([]byte(src))
	return sum[:]
}

// ProgramFingerprint returns the BLAKE3-256 digest of the instructions
// themselves, so one source compiled at two levels gives two fingerprints.
func ProgramFingerprint(prog []cpu.Instruction) []byte {
	h := blake3.New()
	var buf [5]byte
	for _, instr := range prog {
		buf[0] = byte(instr.Op)
		binary.LittleEndian.PutUint32(buf[1:], instr.Count)
		h.Write(buf[:])
	}
	return h.Sum(nil)
}

// EncodeObject serialises prog, optimized at level, to CBOR. fingerprint
// identifies the text prog was built from (see Fingerprint).
func EncodeObject(prog []cpu.Instruction, level int, fingerprint []byte) ([]byte, error) {
	obj := Object{
		Magic:        ObjectMagic,
		Version:      ObjectVersion,
		Level:        level,
		Fingerprint:  fingerprint,
		Instructions: prog,
	}
	data, err := objectEncMode.Marshal(&obj)
	if err != nil {
		return nil, fmt.Errorf("compiler: marshal object: %w", err)
	}
	return data, nil
}

// DecodeObject parses a compiled program. The instruction list is checked
// for unknown ops and zero counts but not for loop balance; that happens
// when the program is loaded into a CPU.
func DecodeObject(data []byte) (*Object, error) {
	var obj Object
	if err := cbor.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("compiler: unmarshal object: %w", err)
	}
	if obj.Magic != ObjectMagic {
		return nil, ErrBadMagic
	}
	if obj.Version != ObjectVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, obj.Version)
	}
	for i, instr := range obj.Instructions {
		if instr.Op > cpu.OpClear {
			return nil, fmt.Errorf("compiler: instruction %d: unknown op 0x%02X", i, uint8(instr.Op))
		}
		if instr.Op.Foldable() && instr.Count == 0 {
			return nil, fmt.Errorf("compiler: instruction %d: %s with zero count", i, instr.Op)
		}
	}
	return &obj, nil
}
