package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"gobf/pkg/compiler"
	"gobf/pkg/cpu"
	"gobf/pkg/utils"
)

var log = commonlog.GetLogger("gobf.console")

// traceStep writes the instruction about to run and the cell it will see.
func traceStep(w io.Writer, vm *cpu.CPU) {
	instr, ok := vm.Next()
	if !ok {
		return
	}
	fmt.Fprintf(w, "%06d %-14s ptr=%d cell=%d\n", vm.PC, instr, vm.Pointer, vm.Tape[vm.Pointer])
}

// runTraced steps vm to completion. out, the buffered writer behind
// vm.Output, is flushed before every IN so prompts are visible while the
// program waits, and again at halt. Each tick of checkpoints triggers a call
// to save between two instructions; a final save happens once the program
// halts. Save errors are logged and do not stop the run.
func runTraced(vm *cpu.CPU, trace io.Writer, out *bufio.Writer, checkpoints <-chan time.Time, save func() error) {
	for !vm.Halted {
		select {
		case <-checkpoints:
			flushAndSave(out, save, "checkpoint")
		default:
		}
		if next, ok := vm.Next(); ok && next.Op == cpu.OpRead {
			if err := out.Flush(); err != nil {
				log.Warningf("flush before read: %s", err)
			}
		}
		if trace != nil {
			traceStep(trace, vm)
		}
		vm.Step()
	}
	flushAndSave(out, save, "final checkpoint")
}

func flushAndSave(out *bufio.Writer, save func() error, what string) {
	if err := out.Flush(); err != nil {
		log.Warningf("%s: flush output: %s", what, err)
	}
	if err := save(); err != nil {
		log.Warningf("%s failed: %s", what, err)
	}
}

func main() {
	level := flag.Int("O", compiler.OptClear, "optimization level")
	memory := flag.Int("memory", cpu.DefaultMemory, "tape length in cells")
	trace := flag.Bool("trace", false, "print every instruction to stderr before it runs")
	checkpoint := flag.String("checkpoint", "", "write a tape snapshot to this file periodically")
	every := flag.Duration("every", 3*time.Second, "checkpoint interval")
	resume := flag.String("resume", "", "continue a run from a checkpoint written by -checkpoint")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: console [options] program.bf")
		flag.PrintDefaults()
		os.Exit(2)
	}

	fullPath, _, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
	src, err := utils.ReadSource(fullPath)
	if err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
	prog, err := compiler.Compile(src, *level)
	if err != nil {
		log.Errorf("Compilation failed: %s", err)
		os.Exit(1)
	}

	out := bufio.NewWriter(os.Stdout)
	vm := cpu.NewCPU(*memory)
	vm.Fingerprint = compiler.ProgramFingerprint(prog)
	vm.Input = bufio.NewReader(os.Stdin)
	vm.Output = out

	if err := vm.Load(prog); err != nil {
		log.Errorf("Invalid program: %s", err)
		os.Exit(1)
	}
	if *resume != "" {
		if err := vm.ResumeFromFile(*resume); err != nil {
			log.Errorf("Resume failed: %s", err)
			os.Exit(1)
		}
	}

	var traceOut io.Writer
	if *trace {
		traceOut = os.Stderr
	}

	save := func() error {
		if *checkpoint == "" {
			return nil
		}
		return vm.HibernateToFile(*checkpoint)
	}

	var ticks <-chan time.Time
	if *checkpoint != "" {
		ticker := time.NewTicker(*every)
		defer ticker.Stop()
		ticks = ticker.C
	}

	began := time.Now()
	runTraced(vm, traceOut, out, ticks, save)
	log.Infof("executed %s instructions in %s", humanize.Comma(int64(vm.Executed)), time.Since(began))
}
