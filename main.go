//go:build !js

package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"

	"gobf/pkg/asm"
	"gobf/pkg/compiler"
	"gobf/pkg/config"
	"gobf/pkg/cpu"
	"gobf/pkg/utils"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options is the merged result of gobf.toml and the command line.
type options struct {
	program   string
	memory    int
	start     int
	level     int
	verbose   bool
	dumpMem   string
	dumpInst  string
	out       string
	compile   bool
	saveState string
	loadState string
}

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("gobf", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "configuration file (default: nearest "+config.FileName+")")
	memory := fs.Int("memory", cpu.DefaultMemory, "tape length in cells")
	start := fs.Int("start", 0, "initial pointer position")
	level := fs.Int("O", compiler.OptNone, "optimization level: 0 none, 1 fold runs, 2 also rewrite [-]")
	verbose := fs.Bool("v", false, "print phase messages, instruction count and run time")
	dumpMem := fs.String("dump-mem", "", "write a hex dump of the tape to this file after the run")
	dumpInst := fs.String("dump-inst", "", "write the instruction listing to this file after the run")
	out := fs.String("out", "", "write the compiled program object to this file")
	compileOnly := fs.Bool("c", false, "compile to a program object and exit without running")
	saveState := fs.String("save-state", "", "write a tape snapshot to this file after the run")
	loadState := fs.String("load-state", "", "seed tape and pointer from a snapshot before the run")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: gobf [options] program.{bf,bfa,bfo}\n\n")
		fmt.Fprintf(stderr, "Runs a brainfuck program on a circular byte tape.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  gobf -O 2 hello.bf                # Run optimized\n")
		fmt.Fprintf(stderr, "  gobf -v -dump-mem mem.txt prog.bf # Report count and dump the tape\n")
		fmt.Fprintf(stderr, "  gobf -c -O 2 prog.bf              # Write prog.bfo\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errUsage
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.FindAndLoad(filepath.Dir(fs.Arg(0)))
	}
	if err != nil {
		return nil, err
	}

	o := &options{
		program:   fs.Arg(0),
		memory:    cfg.Run.Memory,
		start:     cfg.Run.Start,
		level:     cfg.Run.Optimize,
		verbose:   cfg.Run.Verbose,
		dumpMem:   cfg.Dump.Memory,
		dumpInst:  cfg.Dump.Instructions,
		out:       *out,
		compile:   *compileOnly,
		saveState: *saveState,
		loadState: *loadState,
	}
	if set["memory"] {
		o.memory = *memory
	}
	if set["start"] {
		o.start = *start
	}
	if set["O"] {
		o.level = *level
	}
	if set["v"] {
		o.verbose = *verbose
	}
	if set["dump-mem"] {
		o.dumpMem = *dumpMem
	}
	if set["dump-inst"] {
		o.dumpInst = *dumpInst
	}
	if o.compile && o.out == "" {
		o.out = utils.DefaultOutputPath(o.program)
	}

	check := config.Config{Run: config.Run{Memory: o.memory, Start: o.start, Optimize: o.level}}
	if err := check.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

var errUsage = errors.New("usage")

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "gobf: %v\n", err)
		}
		return 2
	}

	verbosity := 0
	if o.verbose {
		verbosity = 1
	}
	configureLogging(verbosity, stderr)

	began := time.Now()

	if o.verbose {
		fmt.Fprintln(stdout, "Reading contents of program file..")
	}
	prog, fingerprint, err := loadProgram(o, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "gobf: %v\n", err)
		return 1
	}

	if o.out != "" {
		if err := writeObject(o.out, prog, o.level, fingerprint); err != nil {
			fmt.Fprintf(stderr, "gobf: failed to write program object %q: %v\n", o.out, err)
			return 1
		}
		if o.verbose || o.compile {
			fmt.Fprintf(stdout, "compiled %d instructions -> %s\n", len(prog), o.out)
		}
	}
	if o.compile {
		return 0
	}

	vm := cpu.NewCPU(o.memory)
	vm.Pointer = o.start
	vm.Fingerprint = fingerprint
	vm.Input = bufio.NewReader(stdin)
	vm.Output = stdout

	if o.loadState != "" {
		if err := vm.RestoreFromFile(o.loadState); err != nil {
			fmt.Fprintf(stderr, "gobf: failed to load state %q: %v\n", o.loadState, err)
			return 1
		}
	}

	if err := vm.Load(prog); err != nil {
		fmt.Fprintf(stderr, "gobf: invalid program %s: %v\n", o.program, err)
		return 1
	}

	if o.verbose {
		fmt.Fprintln(stdout)
	}

	vm.Run()

	if o.verbose {
		fmt.Fprintf(stdout, "\nFinished %s instructions in %.4fs\n",
			humanize.Comma(int64(vm.Executed)), time.Since(began).Seconds())
	}

	if o.dumpInst != "" {
		if err := writeFile(o.dumpInst, func(w io.Writer) error { return asm.Disassemble(w, prog) }); err != nil {
			fmt.Fprintf(stderr, "Could not dump instructions to file: %v\n", err)
		}
	}
	if o.dumpMem != "" {
		if err := writeFile(o.dumpMem, vm.DumpMemory); err != nil {
			fmt.Fprintf(stderr, "Could not dump memory contents to file: %v\n", err)
		}
	}
	if o.saveState != "" {
		if err := vm.HibernateToFile(o.saveState); err != nil {
			fmt.Fprintf(stderr, "Could not save state to file: %v\n", err)
		}
	}

	return 0
}

// configureLogging installs an unbuffered simple backend that writes to w.
func configureLogging(verbosity int, w io.Writer) {
	backend := simple.NewBackend()
	backend.Buffered = false
	backend.Configure(verbosity, nil)
	if commonlog.VerbosityToMaxLevel(verbosity) != commonlog.None {
		backend.Writer = w
	}
	commonlog.SetBackend(backend)
}

// loadProgram reads o.program according to its extension and returns the
// instructions together with a fingerprint of what was loaded.
func loadProgram(o *options, stdout io.Writer) ([]cpu.Instruction, []byte, error) {
	fullPath, _, err := utils.GetPathInfo(o.program)
	if err != nil {
		return nil, nil, err
	}

	if utils.KindOf(fullPath) == utils.KindCompiled {
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read program object %q: %w", o.program, err)
		}
		obj, err := compiler.DecodeObject(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", o.program, err)
		}
		// An object keeps its own level; -O can only add optimization.
		if o.level > obj.Level {
			return compiler.Optimize(obj.Instructions, o.level), obj.Fingerprint, nil
		}
		return obj.Instructions, obj.Fingerprint, nil
	}

	src, err := utils.ReadSource(fullPath)
	if err != nil {
		return nil, nil, err
	}

	if o.verbose {
		fmt.Fprintln(stdout, "Parsing list of instructions..")
	}

	var prog []cpu.Instruction
	if utils.KindOf(fullPath) == utils.KindListing {
		prog, err = asm.Assemble(src)
		if err != nil {
			return nil, nil, fmt.Errorf("assembly failed: %w", err)
		}
		prog = compiler.Optimize(prog, o.level)
	} else {
		prog, err = compiler.Compile(src, o.level)
		if err != nil {
			return nil, nil, fmt.Errorf("compilation failed: %w", err)
		}
	}
	return prog, compiler.Fingerprint(src), nil
}

func writeObject(path string, prog []cpu.Instruction, level int, fingerprint []byte) error {
	data, err := compiler.EncodeObject(prog, level, fingerprint)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
