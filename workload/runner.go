package workload

import (
	"context"
	"fmt"
	"io"

	"github.com/sarchlab/pagesim/kernel"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sirupsen/logrus"
)

// A Runner executes commands against a kernel and prints their results.
type Runner struct {
	kernel   *kernel.Kernel
	out      io.Writer
	log      logrus.FieldLogger
	progress *Progress
}

// NewRunner creates a runner. The kernel must own a real MMU.
func NewRunner(k *kernel.Kernel, out io.Writer) *Runner {
	if k.MMU() == nil {
		panic("kernel has no MMU")
	}

	return &Runner{
		kernel: k,
		out:    out,
		log:    logrus.StandardLogger(),
	}
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(log logrus.FieldLogger) *Runner {
	r.log = log
	return r
}

// WithProgress sets the tracker the runner advances command by command.
func (r *Runner) WithProgress(p *Progress) *Runner {
	r.progress = p
	return r
}

// Run executes the commands in order and stops at the first failure or when
// the context is cancelled.
func (r *Runner) Run(ctx context.Context, cmds []Command) error {
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.progress != nil {
			r.progress.begin(cmd)
		}

		err := r.Exec(cmd)
		if err != nil {
			err = fmt.Errorf("line %d (%s): %w", cmd.Line, cmd, err)
		}

		if r.progress != nil {
			r.progress.finish(err)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Exec executes a single command.
func (r *Runner) Exec(cmd Command) error {
	r.log.WithField("pid", cmd.PID()).Debugf("exec %s", cmd)

	if cmd.Op == OpSpawn {
		_, err := r.kernel.Spawn(cmd.PID())
		return err
	}

	switch cmd.Op {
	case OpMap:
		return r.syscall(cmd, kernel.SysMemMapOp)
	case OpInc:
		return r.syscall(cmd, kernel.SysMemIncOp)
	case OpSwap:
		return r.syscall(cmd, kernel.SysMemSwpOp)
	case OpIOWrite:
		return r.syscall(cmd, kernel.SysMemIOWrite)
	case OpIORead:
		return r.ioRead(cmd)
	}

	p, err := r.kernel.Process(cmd.PID())
	if err != nil {
		return err
	}

	return r.execLibMem(cmd, p.MM)
}

func (r *Runner) execLibMem(cmd Command, mm *mmu.MM) error {
	m := r.kernel.MMU()
	a := cmd.Args

	switch cmd.Op {
	case OpAlloc:
		addr, err := m.Alloc(mm, int(a[1]), int(a[2]), a[3])
		if err != nil {
			return err
		}

		fmt.Fprintf(r.out, "alloc pid=%d rg=%d addr=%d\n", a[0], a[2], addr)
	case OpFree:
		return m.Free(mm, int(a[1]), int(a[2]))
	case OpWrite:
		return m.WriteRegion(mm, int(a[1]), a[2], byte(a[3]))
	case OpRead:
		value, err := m.ReadRegion(mm, int(a[1]), a[2])
		if err != nil {
			return err
		}

		fmt.Fprintf(r.out, "read pid=%d rg=%d off=%d value=%d\n",
			a[0], a[1], a[2], value)
	case OpDump:
		return m.DumpPageTable(r.out, mm, a[1], a[2])
	default:
		return fmt.Errorf("%w: unknown command %q", ErrSyntax, cmd.Op)
	}

	return nil
}

func (r *Runner) syscall(cmd Command, op kernel.MemOp) error {
	regs := &kernel.Regs{A1: uint64(op), A2: cmd.Args[1]}
	if len(cmd.Args) > 2 {
		regs.A3 = cmd.Args[2]
	}

	return r.kernel.SysMemMap(cmd.PID(), regs)
}

func (r *Runner) ioRead(cmd Command) error {
	regs := &kernel.Regs{A1: uint64(kernel.SysMemIORead), A2: cmd.Args[1]}

	if err := r.kernel.SysMemMap(cmd.PID(), regs); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "ioread pid=%d addr=%d value=%d\n",
		cmd.Args[0], cmd.Args[1], regs.A3)

	return nil
}
