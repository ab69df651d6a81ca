package audio

// FrameBuffer reassembles PCM16 frames that arrive split across network
// writes. A chunk with an odd trailing byte is held back and prefixed to
// the next chunk, so consumers only ever see well-formed even-length data.
//
// FrameBuffer is not safe for concurrent use; each connection owns one.
type FrameBuffer struct {
	pending []byte
}

// Push appends chunk to any held-back bytes and returns the longest
// even-length prefix. It returns nil when fewer than 2 bytes are
// available.
//
// Complete samples are released as soon as they exist; only the odd
// trailing byte waits for the next chunk. An odd-length slice is never
// returned.
func (f *FrameBuffer) Push(chunk []byte) []byte {
	var data []byte
	if len(f.pending) > 0 {
		data = append(f.pending, chunk...)
		f.pending = nil
	} else {
		data = chunk
	}

	if len(data)%2 != 0 {
		f.pending = append([]byte{}, data[len(data)-1])
		data = data[:len(data)-1]
	}

	if len(data) == 0 {
		return nil
	}
	return data
}

// Pending returns the number of held-back bytes (0 or 1).
func (f *FrameBuffer) Pending() int {
	return len(f.pending)
}

// Reset discards any held-back bytes.
func (f *FrameBuffer) Reset() {
	f.pending = nil
}
