package main

import (
	"bufio"
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gobf/pkg/compiler"
	"gobf/pkg/cpu"
)

type consoleRun struct {
	vm     *cpu.CPU
	out    *bufio.Writer
	stdout *bytes.Buffer
}

func loadVM(t *testing.T, src string, level int, input string) *consoleRun {
	t.Helper()
	prog, err := compiler.Compile(src, level)
	if err != nil {
		t.Fatal(err)
	}
	stdout := &bytes.Buffer{}
	out := bufio.NewWriter(stdout)
	vm := cpu.NewCPU(8)
	vm.Fingerprint = compiler.ProgramFingerprint(prog)
	vm.Output = out
	vm.Input = strings.NewReader(input)
	if err := vm.Load(prog); err != nil {
		t.Fatal(err)
	}
	return &consoleRun{vm: vm, out: out, stdout: stdout}
}

func noSave() error { return nil }

func TestRunTracedOutput(t *testing.T) {
	r := loadVM(t, "++>+<[-]", compiler.OptClear, "")

	var trace bytes.Buffer
	saves := 0
	runTraced(r.vm, &trace, r.out, nil, func() error { saves++; return nil })

	want := "000000 Inc(2)         ptr=0 cell=0\n" +
		"000001 Right(1)       ptr=0 cell=2\n" +
		"000002 Inc(1)         ptr=1 cell=0\n" +
		"000003 Left(1)        ptr=1 cell=1\n" +
		"000004 Clear          ptr=0 cell=2\n"
	if trace.String() != want {
		t.Errorf("trace:\n%s\nwant:\n%s", trace.String(), want)
	}
	if saves != 1 {
		t.Errorf("saves = %d, want only the final one", saves)
	}
	if r.stdout.Len() != 0 || r.vm.Tape[0] != 0 || r.vm.Tape[1] != 1 {
		t.Errorf("unexpected end state: out=%q tape=%v", r.stdout.String(), r.vm.Tape)
	}
}

// watchingReader records what had reached stdout each time the program read.
type watchingReader struct {
	stdout *bytes.Buffer
	input  string
	seen   []string
}

func (w *watchingReader) Read(p []byte) (int, error) {
	w.seen = append(w.seen, w.stdout.String())
	if w.input == "" {
		return 0, errors.New("no more input")
	}
	n := copy(p, w.input)
	w.input = w.input[n:]
	return n, nil
}

func TestRunTracedShowsOutputBeforeReading(t *testing.T) {
	r := loadVM(t, "++++++++[>++++++++<-]>.,.>+++++++++++++++++++++++++++++++++.,", compiler.OptClear, "")
	in := &watchingReader{stdout: r.stdout, input: "x"}
	r.vm.Input = in

	runTraced(r.vm, nil, r.out, nil, noSave)

	want := []string{"@", "@x!"}
	if len(in.seen) != len(want) {
		t.Fatalf("reads = %d, want %d", len(in.seen), len(want))
	}
	for i := range want {
		if in.seen[i] != want[i] {
			t.Errorf("read %d saw stdout %q, want %q", i, in.seen[i], want[i])
		}
	}
	if r.stdout.String() != "@x!" {
		t.Errorf("final stdout = %q", r.stdout.String())
	}
}

func TestRunTracedCheckpoints(t *testing.T) {
	r := loadVM(t, "+++.", compiler.OptNone, "")

	ticks := make(chan time.Time, 1)
	ticks <- time.Now()

	var executedAtSave []uint64
	runTraced(r.vm, nil, r.out, ticks, func() error {
		executedAtSave = append(executedAtSave, r.vm.Executed)
		return nil
	})

	if len(executedAtSave) != 2 {
		t.Fatalf("saves = %v, want a tick save and a final save", executedAtSave)
	}
	if executedAtSave[0] != 0 || executedAtSave[1] != 4 {
		t.Errorf("saves happened at %v, want [0 4]", executedAtSave)
	}
}

func TestRunTracedSaveErrorsDoNotStopTheRun(t *testing.T) {
	r := loadVM(t, "+++++++++++++++++++++++++++++++++.", compiler.OptFold, "")

	ticks := make(chan time.Time, 1)
	ticks <- time.Now()
	runTraced(r.vm, nil, r.out, ticks, func() error { return errors.New("disk full") })

	if !r.vm.Halted || r.stdout.String() != "!" {
		t.Errorf("halted = %v, out = %q", r.vm.Halted, r.stdout.String())
	}
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	const src = "++++[>+++[>++<-]<-]>>."

	whole := loadVM(t, src, compiler.OptClear, "")
	runTraced(whole.vm, nil, whole.out, nil, noSave)

	// Interrupt a second run part way through with a checkpoint.
	path := filepath.Join(t.TempDir(), "run.zip")
	first := loadVM(t, src, compiler.OptClear, "")
	for i := 0; i < 20; i++ {
		first.vm.Step()
	}
	if err := first.vm.HibernateToFile(path); err != nil {
		t.Fatal(err)
	}

	resumed := loadVM(t, src, compiler.OptClear, "")
	if err := resumed.vm.ResumeFromFile(path); err != nil {
		t.Fatalf("ResumeFromFile: %v", err)
	}
	if resumed.vm.PC != first.vm.PC {
		t.Errorf("resumed at pc %d, checkpoint was at %d", resumed.vm.PC, first.vm.PC)
	}
	runTraced(resumed.vm, nil, resumed.out, nil, noSave)

	if !bytes.Equal(resumed.vm.Tape, whole.vm.Tape) {
		t.Errorf("tape = %v, want %v", resumed.vm.Tape, whole.vm.Tape)
	}
	if resumed.vm.Executed != whole.vm.Executed || resumed.vm.Pointer != whole.vm.Pointer {
		t.Errorf("executed %d pointer %d, want %d %d",
			resumed.vm.Executed, resumed.vm.Pointer, whole.vm.Executed, whole.vm.Pointer)
	}
	if resumed.stdout.String() != whole.stdout.String() {
		t.Errorf("stdout = %q, want %q", resumed.stdout.String(), whole.stdout.String())
	}

	// A checkpoint from the same source at another level is refused.
	other := loadVM(t, src, compiler.OptNone, "")
	if err := other.vm.ResumeFromFile(path); !errors.Is(err, cpu.ErrFingerprintMismatch) {
		t.Errorf("err = %v, want ErrFingerprintMismatch", err)
	}
}
