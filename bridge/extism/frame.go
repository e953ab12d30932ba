package extism

import (
	"encoding/binary"
	"fmt"
	"math"
)

// nullFrame is the frame length that encodes a null result.
const nullFrame = math.MaxUint32

// EncodeFrames packs each string as a [u32 LE length][bytes] frame.
func EncodeFrames(values ...string) []byte {
	size := 0
	for _, v := range values {
		size += 4 + len(v)
	}

	out := make([]byte, 0, size)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(v)))
		out = append(out, v...)
	}
	return out
}

// DecodeFrames unpacks exactly n frames. A null frame decodes to a nil slice, an empty frame to
// a non-nil empty slice.
func DecodeFrames(data []byte, n int) ([][]byte, error) {
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("frame %d: truncated header", i)
		}
		length := binary.LittleEndian.Uint32(data)
		data = data[4:]

		if length == nullFrame {
			frames = append(frames, nil)
			continue
		}
		if uint64(length) > uint64(len(data)) {
			return nil, fmt.Errorf("frame %d: length %d exceeds remaining %d bytes", i, length, len(data))
		}
		frames = append(frames, append([]byte{}, data[:length]...))
		data = data[length:]
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %d frames", len(data), n)
	}
	return frames, nil
}
