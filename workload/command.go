// Package workload parses and runs memory workload scripts.
//
// A script has one command per line. Blank lines and text after '#' are
// ignored. Numbers are decimal or 0x-prefixed hexadecimal.
//
//	spawn   PID
//	alloc   PID VMA RG SIZE
//	free    PID VMA RG
//	write   PID RG OFF VAL
//	read    PID RG OFF
//	map     PID ADDR PAGES
//	inc     PID VMA SIZE
//	swap    PID PGN
//	ioread  PID ADDR
//	iowrite PID ADDR VAL
//	dump    PID START END
package workload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax is returned for a line that is not a valid command.
var ErrSyntax = errors.New("syntax error")

// Op names a workload command.
type Op string

// Workload commands.
const (
	OpSpawn   Op = "spawn"
	OpAlloc   Op = "alloc"
	OpFree    Op = "free"
	OpWrite   Op = "write"
	OpRead    Op = "read"
	OpMap     Op = "map"
	OpInc     Op = "inc"
	OpSwap    Op = "swap"
	OpIORead  Op = "ioread"
	OpIOWrite Op = "iowrite"
	OpDump    Op = "dump"
)

var arity = map[Op]int{
	OpSpawn:   1,
	OpAlloc:   4,
	OpFree:    3,
	OpWrite:   4,
	OpRead:    3,
	OpMap:     3,
	OpInc:     3,
	OpSwap:    2,
	OpIORead:  2,
	OpIOWrite: 3,
	OpDump:    3,
}

// A Command is one parsed line of a script. Args[0] is always the PID.
type Command struct {
	Line int
	Op   Op
	Args []uint64
}

// PID returns the process the command runs on.
func (c Command) PID() uint32 {
	return uint32(c.Args[0])
}

func (c Command) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = strconv.FormatUint(a, 10)
	}

	return strings.TrimSpace(string(c.Op) + " " + strings.Join(args, " "))
}

// Parse reads a whole script.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		cmd, ok, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if !ok {
			continue
		}

		cmd.Line = lineNo
		cmds = append(cmds, cmd)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cmds, nil
}

// ParseLine parses a single line. It reports false for blank and comment
// lines.
func ParseLine(line string) (Command, bool, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false, nil
	}

	op := Op(strings.ToLower(fields[0]))

	n, known := arity[op]
	if !known {
		return Command{}, false, fmt.Errorf("%w: unknown command %q",
			ErrSyntax, fields[0])
	}

	if len(fields)-1 != n {
		return Command{}, false, fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrSyntax, op, n, len(fields)-1)
	}

	cmd := Command{Op: op, Args: make([]uint64, n)}

	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 0, 64)
		if err != nil {
			return Command{}, false, fmt.Errorf("%w: argument %d of %s: %q",
				ErrSyntax, i+1, op, f)
		}

		cmd.Args[i] = v
	}

	if cmd.Args[0] > uint64(^uint32(0)) {
		return Command{}, false, fmt.Errorf("%w: pid %d out of range",
			ErrSyntax, cmd.Args[0])
	}

	return cmd, true, nil
}
