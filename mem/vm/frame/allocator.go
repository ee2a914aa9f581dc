// Package frame hands out and reclaims physical frames of a memory device.
package frame

import (
	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sirupsen/logrus"
)

// An Allocator takes frames from the free pool of a device.
type Allocator struct {
	dev memphy.Device
	log logrus.FieldLogger
}

// NewAllocator creates an allocator over the device.
func NewAllocator(dev memphy.Device, log logrus.FieldLogger) *Allocator {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Allocator{dev: dev, log: log}
}

// Allocate requests count frames one at a time. It stops at the first
// exhaustion of the pool and returns what it got. Getting fewer frames than
// requested is not an error; callers compare the count themselves.
func (a *Allocator) Allocate(count int) (*List, int) {
	list := &List{}

	for len(list.frames) < count {
		fpn, err := a.dev.GetFreeFrame()
		if err != nil {
			a.log.WithFields(logrus.Fields{
				"requested": count,
				"count":     list.Len(),
			}).Debug("frame pool exhausted")

			break
		}

		list.push(fpn)
	}

	return list, list.Len()
}

// Release returns every frame still held by the list to the device and
// empties the list. Releasing an empty list does nothing.
func (a *Allocator) Release(list *List) {
	if list == nil {
		return
	}

	for _, fpn := range list.frames {
		a.dev.PutFreeFrame(fpn)
	}

	list.frames = nil
}

// AllocateTableFrame takes a single frame for a page-table level.
func (a *Allocator) AllocateTableFrame() (uint64, error) {
	return a.dev.GetFreeFrame()
}

// ReleaseTableFrame returns a single frame to the device.
func (a *Allocator) ReleaseTableFrame(fpn uint64) {
	a.dev.PutFreeFrame(fpn)
}
