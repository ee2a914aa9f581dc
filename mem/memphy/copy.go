package memphy

import "fmt"

// CopyPage copies one page of content from a frame of the source device to a
// frame of the destination device, one byte at a time. Both frames must be
// reserved by the caller. Page-table entries are not touched.
func CopyPage(
	src Device, srcFPN uint64,
	dst Device, dstFPN uint64,
	pageSize uint64,
) error {
	for cell := uint64(0); cell < pageSize; cell++ {
		addrSrc := srcFPN*pageSize + cell
		addrDst := dstFPN*pageSize + cell

		data, err := src.Read(addrSrc)
		if err != nil {
			return fmt.Errorf("copy page %d: %w", srcFPN, err)
		}

		err = dst.Write(addrDst, data)
		if err != nil {
			return fmt.Errorf("copy page to %d: %w", dstFPN, err)
		}
	}

	return nil
}
