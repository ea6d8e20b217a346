package protocol

import "bytes"

// FrameBuffer assembles newline-delimited frames from arbitrary byte chunks.
//
// The transport delivers reads in whatever sizes the kernel hands back: a
// frame may arrive split across several reads, and several frames may arrive
// in one read. The buffer retains any trailing partial frame across calls.
type FrameBuffer struct {
	buf bytes.Buffer
}

// Append adds a chunk of raw bytes to the buffer.
func (f *FrameBuffer) Append(chunk []byte) {
	f.buf.Write(chunk)
}

// Next extracts the next complete frame, with its delimiter removed, or
// returns (nil, false) when no complete frame is buffered. Blank frames
// (whitespace only) are skipped rather than returned.
func (f *FrameBuffer) Next() ([]byte, bool) {
	for {
		data := f.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return nil, false
		}

		line := make([]byte, idx)
		copy(line, data[:idx])
		f.buf.Next(idx + 1)

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, true
	}
}

// Pending reports how many bytes of incomplete frame are buffered.
func (f *FrameBuffer) Pending() int {
	return f.buf.Len()
}
