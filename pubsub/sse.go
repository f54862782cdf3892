package pubsub

import "bytes"

// ssePrefix tags every frame StreamBroker emits. A "data: " line whose first
// comma-delimited field isn't this prefix, or that is missing either
// separator, is malformed per spec's "<prefix>,<room>,<json-payload>"
// framing and is skipped rather than misparsed as a payload.
const ssePrefix = "msg"

// sseScanner extracts complete "data: ..." lines out of an arbitrarily
// chunked byte stream. Subscribing must tolerate chunk boundaries that split
// a line anywhere -- mid-prefix, mid-comma, mid-payload -- so Feed never
// assumes a call boundary lines up with a line boundary: any trailing bytes
// with no terminating '\n' are held until the next Feed call supplies the
// rest.
type sseScanner struct {
	buf []byte
}

// Feed appends chunk to the buffered remainder and returns every complete
// line found, stripped of its trailing '\n' (and a preceding '\r', if any).
func (s *sseScanner) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(s.buf[:i], "\r")
		lines = append(lines, string(line))
		s.buf = s.buf[i+1:]
	}
	return lines
}

// parseDataLine parses one line of the default adapter's wire framing:
// "data: <prefix>,<room>,<json-payload>". Lines not starting with "data: ",
// or missing either comma separator, are reported as malformed via ok=false
// so the caller can log and skip rather than deliver a corrupt payload.
func parseDataLine(line string) (room, payload string, ok bool) {
	const dataPrefix = "data: "
	if len(line) < len(dataPrefix) || line[:len(dataPrefix)] != dataPrefix {
		return "", "", false
	}
	rest := line[len(dataPrefix):]

	firstComma := bytes.IndexByte([]byte(rest), ',')
	if firstComma < 0 {
		return "", "", false
	}
	prefix, rest := rest[:firstComma], rest[firstComma+1:]
	if prefix != ssePrefix {
		return "", "", false
	}

	secondComma := bytes.IndexByte([]byte(rest), ',')
	if secondComma < 0 {
		return "", "", false
	}
	room, payload = rest[:secondComma], rest[secondComma+1:]
	return room, payload, true
}

// formatDataLine is parseDataLine's inverse, used by StreamBroker to emit
// the same framing its own client parses.
func formatDataLine(room, payload string) string {
	return "data: " + ssePrefix + "," + room + "," + payload
}
