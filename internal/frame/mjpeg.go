package frame

import "bytes"

var (
	jpegSOI = []byte{0xFF, 0xD8} // start of image
	jpegEOI = []byte{0xFF, 0xD9} // end of image
)

// maxFrameSize bounds a single MJPEG frame. Frames larger than this abort
// the scanner and force a reconnect.
const maxFrameSize = 16 * 1024 * 1024

// scanJPEG is a bufio.SplitFunc that extracts complete JPEG images from an
// MJPEG byte stream. Bytes before a start-of-image marker are discarded.
func scanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep the final byte, it may be the first half of a marker.
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Discard the junk before the marker and wait for more data.
		return start, nil, nil
	}

	frameEnd := start + len(jpegSOI) + end + len(jpegEOI)
	return frameEnd, data[start:frameEnd], nil
}
