package mux

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var durRegex = regexp.MustCompile(`Duration: (\d+:\d+:\d+(?:\.\d+)?)`)

// noisyPrefixes are per-segment chatter that never reaches the diagnostics stream.
var noisyPrefixes = []string{
	"[hls @",
	"[https @",
	"[http @",
	"[tcp @",
	"[tls @",
	"[crypto @",
	"[file @",
	"[AVIOContext @",
	"Opening '",
	"Press [q]",
}

// scanLines splits on \r as well as \n so carriage-return progress updates
// arrive as separate lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseDuration extracts the input duration in milliseconds.
func parseDuration(line string) (int64, bool) {
	m := durRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	ms, err := parseClock(m[1])
	if err != nil {
		return 0, false
	}
	return ms, true
}

// parseStats reads time= and speed= from a progress line.
func parseStats(line string) (elapsedMs int64, rate float64, ok bool) {
	if !strings.Contains(line, "time=") {
		return 0, 0, false
	}
	val := extract(line, "time=")
	if val == "" || val == "N/A" {
		return 0, 0, false
	}
	elapsedMs, err := parseClock(val)
	if err != nil {
		return 0, 0, false
	}
	if s := strings.TrimSuffix(extract(line, "speed="), "x"); s != "" && s != "N/A" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			rate = f
		}
	}
	return elapsedMs, rate, true
}

func extract(line, key string) string {
	idx := strings.Index(line, key)
	if idx == -1 {
		return ""
	}
	val := strings.TrimLeft(line[idx+len(key):], " ")
	if i := strings.IndexByte(val, ' '); i >= 0 {
		return val[:i]
	}
	return val
}

// parseClock converts HH:MM:SS.ff to milliseconds. Negative values (seen
// at stream start) clamp to zero.
func parseClock(val string) (int64, error) {
	neg := strings.HasPrefix(val, "-")
	parts := strings.Split(strings.TrimPrefix(val, "-"), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", val)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	if neg {
		return 0, nil
	}
	return (h*3600+m*60)*1000 + int64(s*1000+0.5), nil
}

func isNoisy(line string) bool {
	for _, p := range noisyPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
