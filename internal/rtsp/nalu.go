package rtsp

import (
	"bufio"
	"bytes"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// MaxNALUSize bounds a single NAL unit read from the stream.
const MaxNALUSize = 4 << 20

var startCode = []byte{0, 0, 1}

// SplitNALU is a bufio.SplitFunc that cuts an Annex-B byte stream into
// NAL units without their start codes.  Both 3- and 4-byte start codes
// are accepted; bytes before the first start code are discarded.
func SplitNALU(data []byte, atEOF bool) (advance int, token []byte, err error) {
	first := bytes.Index(data, startCode)
	if first < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a possible partial start code at the tail.
		if len(data) > 2 {
			return len(data) - 2, nil, nil
		}
		return 0, nil, nil
	}

	start := first + len(startCode)
	next := bytes.Index(data[start:], startCode)
	if next < 0 {
		if !atEOF {
			return first, nil, nil
		}
		nalu := data[start:]
		if len(nalu) == 0 {
			return len(data), nil, nil
		}
		return len(data), nalu, nil
	}

	end := start + next
	// Zeros before a start code belong to it (4-byte form); a NAL unit
	// never ends in a zero byte.
	nalEnd := end
	for nalEnd > start && data[nalEnd-1] == 0 {
		nalEnd--
	}
	if nalEnd == start {
		return end, nil, nil
	}
	return end, data[start:nalEnd], nil
}

// NewScanner returns a scanner yielding the NAL units of r.
func NewScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxNALUSize)
	sc.Split(SplitNALU)
	return sc
}

// NALUType returns the type of nalu.
func NALUType(nalu []byte) h264.NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return h264.NALUType(nalu[0] & 0x1F)
}
