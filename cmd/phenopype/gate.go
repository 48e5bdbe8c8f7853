package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Imageomics/phenopype/internal/session"
	"github.com/Imageomics/phenopype/internal/workspace"
)

// stdinGate is the CLI's visualization gate: it reports the canvas state
// and reads a continue/terminate decision from the terminal. A real
// windowed display would satisfy the same interface.
type stdinGate struct {
	in  io.Reader
	out io.Writer

	// one scanner for the gate's lifetime; a fresh scanner per prompt
	// would drop input buffered past the first line
	scanner *bufio.Scanner
}

func (g *stdinGate) Present(canvas *workspace.Buffer) (session.Verdict, error) {
	if canvas != nil {
		fmt.Fprintf(g.out, "canvas ready (%dx%d). ", canvas.W, canvas.H)
	} else {
		fmt.Fprint(g.out, "no canvas selected. ")
	}
	fmt.Fprint(g.out, "edit the config and press enter to re-run, or type q to finish: ")

	if g.scanner == nil {
		g.scanner = bufio.NewScanner(g.in)
	}
	if !g.scanner.Scan() {
		// stdin closed; treat as termination
		return session.Verdict{Terminate: true}, g.scanner.Err()
	}
	answer := strings.TrimSpace(strings.ToLower(g.scanner.Text()))
	return session.Verdict{Terminate: answer == "q" || answer == "quit"}, nil
}
