package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	stateEntry = "cpu_state.cbor"
	tapeEntry  = "tape.bin"

	snapshotVersion = 1
)

// snapshotState is the CBOR-serialised control state stored next to the tape.
type snapshotState struct {
	Version     int    `cbor:"version"`
	Pointer     int    `cbor:"pointer"`
	PC          int    `cbor:"pc"`
	Executed    uint64 `cbor:"executed"`
	TapeLen     int    `cbor:"tape_len"`
	Fingerprint []byte `cbor:"fingerprint,omitempty"`
}

var stateEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cpu: failed to create CBOR enc mode: %v", err))
	}
	stateEncMode = em
}

// HibernateToBytes serialises the tape, pointer and counters into an in-memory
// ZIP archive. The tape entry is zstd-compressed.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	state := snapshotState{
		Version:     snapshotVersion,
		Pointer:     c.Pointer,
		PC:          c.PC,
		Executed:    c.Executed,
		TapeLen:     len(c.Tape),
		Fingerprint: c.Fingerprint,
	}
	stateData, err := stateEncMode.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal cpu_state: %w", err)
	}
	if err := writeZipEntry(zw, stateEntry, zip.Store, stateData); err != nil {
		return nil, err
	}

	if err := writeZipEntry(zw, tapeEntry, zstd.ZipMethodWinZip, c.Tape); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	ErrNotLoaded           = errors.New("no program loaded")
	ErrFingerprintMismatch = errors.New("snapshot was taken from a different program")
)

// decodeSnapshot validates a snapshot produced by HibernateToBytes and returns
// its control state and tape.
func decodeSnapshot(data []byte) (snapshotState, []byte, error) {
	var state snapshotState

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return state, nil, fmt.Errorf("open zip: %w", err)
	}
	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	stateData, err := readZipEntry(fileMap, stateEntry)
	if err != nil {
		return state, nil, err
	}
	if err := cbor.Unmarshal(stateData, &state); err != nil {
		return state, nil, fmt.Errorf("unmarshal cpu_state: %w", err)
	}
	if state.Version != snapshotVersion {
		return state, nil, fmt.Errorf("unsupported snapshot version %d", state.Version)
	}

	tape, err := readZipEntry(fileMap, tapeEntry)
	if err != nil {
		return state, nil, err
	}
	if len(tape) != state.TapeLen || len(tape) == 0 {
		return state, nil, fmt.Errorf("snapshot tape has %d cells, state says %d", len(tape), state.TapeLen)
	}
	if state.Pointer < 0 || state.Pointer >= len(tape) {
		return state, nil, fmt.Errorf("%w: snapshot pointer %d", ErrPointerRange, state.Pointer)
	}
	return state, tape, nil
}

// RestoreFromBytes seeds the tape and pointer from a snapshot produced by
// HibernateToBytes. The tape is replaced by the saved one, so its length
// follows the snapshot. Program counter and executed count are left alone:
// the next loaded program starts from its first instruction.
func (c *CPU) RestoreFromBytes(data []byte) error {
	state, tape, err := decodeSnapshot(data)
	if err != nil {
		return err
	}

	if len(c.Fingerprint) > 0 && len(state.Fingerprint) > 0 && !bytes.Equal(c.Fingerprint, state.Fingerprint) {
		c.logger().Warningf("snapshot was taken from program %s, restoring into %s",
			shortHex(state.Fingerprint), shortHex(c.Fingerprint))
	}

	c.Tape = tape
	c.Pointer = state.Pointer
	return nil
}

// ResumeFromBytes continues a run checkpointed by HibernateToBytes. The
// program must already be loaded and c.Fingerprint must match the one stored
// in the snapshot; tape, pointer, program counter and executed count are all
// restored.
func (c *CPU) ResumeFromBytes(data []byte) error {
	if !c.loaded {
		return ErrNotLoaded
	}
	state, tape, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	if len(c.Fingerprint) == 0 || !bytes.Equal(c.Fingerprint, state.Fingerprint) {
		return fmt.Errorf("%w: snapshot %s, loaded %s", ErrFingerprintMismatch,
			shortHex(state.Fingerprint), shortHex(c.Fingerprint))
	}
	if state.PC < 0 || state.PC > len(c.program) {
		return fmt.Errorf("snapshot pc %d outside program of %d instructions", state.PC, len(c.program))
	}

	c.Tape = tape
	c.Pointer = state.Pointer
	c.PC = state.PC
	c.Executed = state.Executed
	c.Halted = c.PC >= len(c.program)
	return nil
}

func (c *CPU) HibernateToFile(path string) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *CPU) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.RestoreFromBytes(data)
}

func (c *CPU) ResumeFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.ResumeFromBytes(data)
}

func shortHex(b []byte) string {
	if len(b) > 8 {
		b = b[:8]
	}
	return hex.EncodeToString(b)
}

func writeZipEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
