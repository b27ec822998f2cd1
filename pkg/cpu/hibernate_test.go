package cpu

import (
	"archive/zip"
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestCPU_HibernateRoundTrip(t *testing.T) {
	c1 := NewCPU(4096)
	for i := range c1.Tape {
		c1.Tape[i] = byte(i * 7)
	}
	c1.Pointer = 1234
	c1.PC = 9
	c1.Executed = 123456789
	c1.Fingerprint = []byte{1, 2, 3, 4}

	data, err := c1.HibernateToBytes()
	if err != nil {
		t.Fatalf("HibernateToBytes: %v", err)
	}

	c2 := NewCPU(8)
	if err := c2.RestoreFromBytes(data); err != nil {
		t.Fatalf("RestoreFromBytes: %v", err)
	}

	if !bytes.Equal(c2.Tape, c1.Tape) {
		t.Errorf("tape mismatch after restore")
	}
	if c2.Pointer != c1.Pointer {
		t.Errorf("Pointer: got %d, want %d", c2.Pointer, c1.Pointer)
	}
	// Seeding a run does not carry the old program's position over.
	if c2.PC != 0 || c2.Executed != 0 {
		t.Errorf("PC = %d, Executed = %d after restore, want 0, 0", c2.PC, c2.Executed)
	}
}

func TestCPU_HibernateCompressesTape(t *testing.T) {
	c := NewCPU(DefaultMemory)
	c.Tape[100] = 1

	data, err := c.HibernateToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) >= DefaultMemory/10 {
		t.Errorf("snapshot of a mostly empty tape is %d bytes", len(data))
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	if !names[stateEntry] || !names[tapeEntry] {
		t.Errorf("snapshot entries = %v", names)
	}
}

func TestCPU_HibernateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.zip")

	c1 := NewCPU(64)
	c1.Tape[63] = 0xAB
	c1.Pointer = 63
	if err := c1.HibernateToFile(path); err != nil {
		t.Fatalf("HibernateToFile: %v", err)
	}

	c2 := NewCPU(1)
	if err := c2.RestoreFromFile(path); err != nil {
		t.Fatalf("RestoreFromFile: %v", err)
	}
	if len(c2.Tape) != 64 || c2.Tape[63] != 0xAB || c2.Pointer != 63 {
		t.Errorf("restored len=%d tape[63]=%#x pointer=%d", len(c2.Tape), c2.Tape[63], c2.Pointer)
	}
}

func TestCPU_RestoreRejectsGarbage(t *testing.T) {
	c := NewCPU(8)
	if err := c.RestoreFromBytes([]byte("definitely not a zip")); err == nil {
		t.Error("expected error for non-zip data")
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	if err := writeZipEntry(zw, tapeEntry, zip.Store, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.RestoreFromBytes(buf.Bytes()); err == nil {
		t.Error("expected error for snapshot without state entry")
	}
	if len(c.Tape) != 8 {
		t.Errorf("failed restore replaced the tape")
	}
}

func TestCPU_RestoreRejectsBadPointer(t *testing.T) {
	c1 := NewCPU(8)
	c1.Pointer = 8 // out of range on purpose
	data, err := c1.HibernateToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if err := NewCPU(8).RestoreFromBytes(data); !errors.Is(err, ErrPointerRange) {
		t.Errorf("err = %v, want ErrPointerRange", err)
	}
}

// checkpointAfter runs src for steps instructions and snapshots the CPU.
func checkpointAfter(t *testing.T, src string, tapeLen, steps int) []byte {
	t.Helper()
	c := newSilentCPU(tapeLen)
	c.Fingerprint = []byte("program")
	if err := c.Load(prog(src)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < steps; i++ {
		c.Step()
	}
	data, err := c.HibernateToBytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCPU_ResumeMatchesUninterruptedRun(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		steps int
	}{
		{"Straight line", "+++++", 3},
		{"Inside a loop", "++++[>++<-]>+", 9},
		{"Before the first instruction", "+>+>+", 0},
		{"After halting", "++", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			whole := newSilentCPU(8)
			if err := whole.Load(prog(tc.src)); err != nil {
				t.Fatal(err)
			}
			whole.Run()

			data := checkpointAfter(t, tc.src, 8, tc.steps)
			resumed := newSilentCPU(8)
			resumed.Fingerprint = []byte("program")
			if err := resumed.Load(prog(tc.src)); err != nil {
				t.Fatal(err)
			}
			if err := resumed.ResumeFromBytes(data); err != nil {
				t.Fatalf("ResumeFromBytes: %v", err)
			}
			resumed.Run()

			if !bytes.Equal(resumed.Tape, whole.Tape) {
				t.Errorf("tape = %v, want %v", resumed.Tape, whole.Tape)
			}
			if resumed.Pointer != whole.Pointer || resumed.Executed != whole.Executed {
				t.Errorf("pointer %d executed %d, want %d %d",
					resumed.Pointer, resumed.Executed, whole.Pointer, whole.Executed)
			}
		})
	}
}

func TestCPU_ResumeRejectsOtherPrograms(t *testing.T) {
	data := checkpointAfter(t, "+++++", 8, 3)

	c := newSilentCPU(8)
	if err := c.ResumeFromBytes(data); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("resume before Load: err = %v, want ErrNotLoaded", err)
	}

	c.Fingerprint = []byte("something else")
	if err := c.Load(prog("+++++")); err != nil {
		t.Fatal(err)
	}
	if err := c.ResumeFromBytes(data); !errors.Is(err, ErrFingerprintMismatch) {
		t.Errorf("err = %v, want ErrFingerprintMismatch", err)
	}
	if c.PC != 0 || c.Tape[0] != 0 {
		t.Errorf("rejected resume changed the CPU: pc %d tape[0] %d", c.PC, c.Tape[0])
	}

	c.Fingerprint = []byte("program")
	if err := c.Load(prog("+")); err != nil {
		t.Fatal(err)
	}
	if err := c.ResumeFromBytes(data); err == nil {
		t.Error("expected error for a pc past the end of the loaded program")
	}
}
