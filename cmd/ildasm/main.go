package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wippyai/ilstub/sig"
	"github.com/wippyai/ilstub/stub"
)

func main() {
	var (
		codeFile    = flag.String("code", "", "Path to a method body")
		sigFile     = flag.String("sig", "", "Path to a method signature (optional)")
		localsFile  = flag.String("locals", "", "Path to a local signature (optional)")
		asHex       = flag.Bool("hex", false, "Inputs are hex text instead of raw bytes")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *codeFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: ildasm -code <body.bin> [-sig <sig.bin>] [-locals <locals.bin>] [-hex]")
		fmt.Fprintln(os.Stderr, "       ildasm -code <body.bin> -i  (interactive mode)")
		os.Exit(1)
	}

	in, err := load(*codeFile, *sigFile, *localsFile, *asHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(in); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := write(os.Stdout, in); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// listing is a decoded method body plus its optional signatures.
type listing struct {
	name   string
	method *sig.MethodSignature
	locals []sig.Descriptor
	instrs []stub.DecodedInstruction
	size   int
}

func load(codeFile, sigFile, localsFile string, asHex bool) (*listing, error) {
	code, err := readInput(codeFile, asHex)
	if err != nil {
		return nil, err
	}
	instrs, err := stub.Disassemble(code)
	if err != nil {
		return nil, err
	}
	in := &listing{name: codeFile, instrs: instrs, size: len(code)}

	if sigFile != "" {
		raw, err := readInput(sigFile, asHex)
		if err != nil {
			return nil, err
		}
		if in.method, err = sig.DecodeMethod(raw); err != nil {
			return nil, err
		}
	}
	if localsFile != "" {
		raw, err := readInput(localsFile, asHex)
		if err != nil {
			return nil, err
		}
		if in.locals, err = sig.DecodeLocals(raw); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func write(w io.Writer, in *listing) error {
	if in.method != nil {
		if _, err := fmt.Fprintf(w, "// signature %s\n", formatMethod(in.method)); err != nil {
			return err
		}
	}
	for _, l := range formatLocals(in.locals) {
		if _, err := fmt.Fprintf(w, "// local %s\n", l); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "// code size %d\n", in.size); err != nil {
		return err
	}
	for _, ins := range in.instrs {
		if _, err := fmt.Fprintln(w, formatInstruction(ins)); err != nil {
			return err
		}
	}
	return nil
}
