// Package layout turns loadable segments into a flat memory image.
//
// The flat image is the segments' in-memory contents concatenated in program
// header table order: each segment contributes its file bytes followed by
// zeros up to its in-memory size. Segment i therefore starts at the sum of
// the in-memory sizes of segments 0..i-1, and the image is exactly as long as
// the sum of all in-memory sizes.
//
// The bootloader copies this image to one contiguous region. That only
// reproduces the executable's intended address space when the segments are
// packed back to back in virtual memory in table order. Flatten assumes this
// and does not check it; ValidateContiguous checks it for callers that want
// to fail fast.
//
//	segs := layout.SelectLoadable(img.Segments)
//	l, err := layout.Flatten(w, segs)
//	if err != nil {
//	    return err
//	}
//	target, err := layout.ResolveEntry(l, img.Entry)
package layout
