package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// MemOp selects the operation of the memory syscall.
type MemOp uint64

// Operations of the memory syscall.
const (
	SysMemMapOp   MemOp = 1
	SysMemIncOp   MemOp = 2
	SysMemSwpOp   MemOp = 3
	SysMemIORead  MemOp = 17
	SysMemIOWrite MemOp = 18
)

func (op MemOp) String() string {
	switch op {
	case SysMemMapOp:
		return "MAP"
	case SysMemIncOp:
		return "INC"
	case SysMemSwpOp:
		return "SWP"
	case SysMemIORead:
		return "IO_READ"
	case SysMemIOWrite:
		return "IO_WRITE"
	default:
		return fmt.Sprintf("MemOp(%d)", uint64(op))
	}
}

// Regs are the argument registers of a syscall. A1 holds the operation.
type Regs struct {
	A1 uint64
	A2 uint64
	A3 uint64
}

// SysMemMap services the memory syscall of a process:
//
//	MAP       reserve A3 pages starting at address A2
//	INC       grow area A2 by A3 bytes
//	SWP       swap out page A2
//	IO_READ   A3 = RAM[A2]
//	IO_WRITE  RAM[A2] = A3
func (k *Kernel) SysMemMap(pid uint32, regs *Regs) error {
	p, err := k.Process(pid)
	if err != nil {
		return err
	}

	op := MemOp(regs.A1)

	k.log.WithFields(logrus.Fields{
		"pid": pid,
		"op":  op,
	}).Debugf("memory syscall a2=%d a3=%d", regs.A2, regs.A3)

	switch op {
	case SysMemMapOp:
		err = k.memory.MarkReservedRange(p.MM, regs.A2, int(regs.A3))
	case SysMemIncOp:
		_, err = k.memory.GrowArea(p.MM, int(regs.A2), regs.A3)
	case SysMemSwpOp:
		err = k.memory.SwapOut(p.MM, regs.A2)
	case SysMemIORead:
		var value byte
		value, err = k.memory.ReadPhysical(regs.A2)
		if err == nil {
			regs.A3 = uint64(value)
		}
	case SysMemIOWrite:
		err = k.memory.WritePhysical(regs.A2, byte(regs.A3))
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMemOp, regs.A1)
	}

	if err != nil {
		return fmt.Errorf("memory syscall %s of process %d: %w", op, pid, err)
	}

	return nil
}
