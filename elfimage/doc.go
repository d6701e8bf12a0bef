// Package elfimage reads the parts of an ELF executable that flatimg needs:
// the entry virtual address and the program header table.
//
// Both ELFCLASS32 and ELFCLASS64 images are accepted in either byte order.
// Section headers, symbols and relocations are ignored.
//
//	img, err := elfimage.Parse(data)
//	if err != nil {
//	    return err
//	}
//	for _, seg := range img.Segments {
//	    if seg.Loadable() {
//	        fmt.Printf("%#x %#x %#x\n", seg.VAddr, seg.FileSize, seg.MemSize)
//	    }
//	}
//
// Segment content is exposed through an io.ReaderAt so large images are not
// copied segment by segment before they are flattened.
package elfimage
