package rtsp

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// PayloadType is the dynamic RTP payload type of the video track.
const PayloadType = 96

// ClockRate is the H.264 RTP clock.
const ClockRate = 90000

// describeSDP renders the session description of the single H.264
// track.  Parameter sets are included once the stream has carried them.
func describeSDP(sessionID uint64, host string, sps, pps []byte) []byte {
	fmtp := []string{"packetization-mode=1"}
	if len(sps) >= 4 {
		fmtp = append(fmtp, "profile-level-id="+strings.ToUpper(hex.EncodeToString(sps[1:4])))
	}
	if len(sps) > 0 && len(pps) > 0 {
		fmtp = append(fmtp, "sprop-parameter-sets="+
			base64.StdEncoding.EncodeToString(sps)+","+base64.StdEncoding.EncodeToString(pps))
	}

	lines := []string{
		"v=0",
		fmt.Sprintf("o=- %d 1 IN IP4 %s", sessionID, host),
		"s=mimic",
		"c=IN IP4 0.0.0.0",
		"t=0 0",
		fmt.Sprintf("m=video 0 RTP/AVP %d", PayloadType),
		fmt.Sprintf("a=rtpmap:%d H264/%d", PayloadType, ClockRate),
		fmt.Sprintf("a=fmtp:%d %s", PayloadType, strings.Join(fmtp, "; ")),
		"a=control:streamid=0",
	}
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}
