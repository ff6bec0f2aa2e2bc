// Package loader reads LC-2K machine-code files.
//
// A machine-code file holds one decimal integer per line. Line i is loaded
// at memory address i; the same image serves as instructions and data.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/lc5sim/emu"
)

var (
	// ErrMalformedProgram is wrapped by every parse failure.
	ErrMalformedProgram = errors.New("malformed program")

	// ErrProgramTooLarge is returned when a program does not fit in memory.
	ErrProgramTooLarge = errors.New("program too large for memory")

	errNoInteger = errors.New("line does not start with an integer")
)

// ParseError reports a line that does not start with a decimal integer.
type ParseError struct {
	// Addr is the memory address the line would have been loaded at.
	Addr int
	// Line is the offending text.
	Line string
	// Err is the underlying conversion error, if any.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error in reading address %d: %q", e.Addr, e.Line)
}

// Unwrap lets errors.Is match ErrMalformedProgram.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedProgram}
	}
	return []error{ErrMalformedProgram, e.Err}
}

// Program is a loaded machine-code image.
type Program struct {
	// Words holds the image, starting at address 0.
	Words []int32
	// Source names where the image came from.
	Source string
}

// Len returns the number of words in the image.
func (p *Program) Len() int {
	return len(p.Words)
}

// Load reads a machine-code file. maxWords bounds the image size; values
// <= 0 mean emu.MaxMemoryWords.
func Load(path string, maxWords int) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open machine-code file: %w", err)
	}
	defer func() { _ = f.Close() }()

	prog, err := Parse(f, maxWords)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	prog.Source = path
	return prog, nil
}

// Parse reads a machine-code image from r.
func Parse(r io.Reader, maxWords int) (*Program, error) {
	if maxWords <= 0 || maxWords > emu.MaxMemoryWords {
		maxWords = emu.MaxMemoryWords
	}

	prog := &Program{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		addr := len(prog.Words)
		if addr >= maxWords {
			return nil, fmt.Errorf("%w: more than %d words", ErrProgramTooLarge, maxWords)
		}

		line := scanner.Text()
		value, err := parseWord(line)
		if err != nil {
			return nil, &ParseError{Addr: addr, Line: line, Err: err}
		}
		prog.Words = append(prog.Words, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read machine code: %w", err)
	}

	return prog, nil
}

// parseWord reads the leading decimal integer of a line, ignoring anything
// after it.
func parseWord(line string) (int32, error) {
	s := strings.TrimLeft(line, " \t\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, errNoInteger
	}
	v, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
