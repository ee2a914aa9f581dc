package frame

import (
	"fmt"
	"strings"
)

// A List holds frames taken from a device until they are either consumed by a
// mapping or released back to the device.
type List struct {
	frames []uint64
}

// Len returns the number of frames still held by the list.
func (l *List) Len() int {
	return len(l.frames)
}

// Frames returns a copy of the held frame numbers in allocation order.
func (l *List) Frames() []uint64 {
	return append([]uint64(nil), l.frames...)
}

// At returns the i-th held frame.
func (l *List) At(i int) uint64 {
	return l.frames[i]
}

// Take removes the first held frame from the list and hands its ownership to
// the caller.
func (l *List) Take() (uint64, bool) {
	if len(l.frames) == 0 {
		return 0, false
	}

	fpn := l.frames[0]
	l.frames = l.frames[1:]

	return fpn, true
}

func (l *List) push(fpn uint64) {
	l.frames = append(l.frames, fpn)
}

func (l *List) String() string {
	if l == nil || len(l.frames) == 0 {
		return "fp[]"
	}

	var sb strings.Builder
	for i, fpn := range l.frames {
		if i > 0 {
			sb.WriteString(" ")
		}

		fmt.Fprintf(&sb, "fp[%d]", fpn)
	}

	return sb.String()
}
