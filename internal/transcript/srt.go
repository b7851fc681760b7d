package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSRT parses SRT caption text into segments. Multi-line cues become one segment;
// cues without a valid timing line are skipped.
func ParseSRT(srt string) ([]Segment, error) {
	//	1									sequence number
	//	00:00:00,000 --> 00:00:01,830		start --> end
	//	I'm happy to						line
	//	have you here today.				line
	if strings.TrimSpace(srt) == "" {
		return []Segment{}, nil
	}

	lines := strings.Split(strings.ReplaceAll(srt, "\r\n", "\n"), "\n")
	segments := make([]Segment, 0, len(lines)/4)

	var (
		current  *Segment
		text     []string
		timingOK bool
	)
	flush := func() {
		if current != nil && timingOK && len(text) > 0 {
			current.Index = len(segments)
			current.Text = strings.Join(text, " ")
			segments = append(segments, *current)
		}
		current, text, timingOK = nil, nil, false
	}

	for lineNo, raw := range lines {
		line := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
		if line == "" {
			flush()
			continue
		}

		if strings.Contains(line, "-->") {
			flush()
			start, end, err := parseTimingLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			current = &Segment{StartTime: start, EndTime: end}
			timingOK = true
			continue
		}

		// Sequence numbers precede the timing line.
		if current == nil && isDigitOnly(line) {
			continue
		}
		if current != nil {
			text = append(text, line)
		}
	}
	flush()
	return segments, nil
}

func parseTimingLine(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timing line %q", line)
	}
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Position settings may follow the end time ("00:00:02,000 align:start").
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("missing end time in %q", line)
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm and MM:SS.mmm.
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	var total float64
	for _, f := range fields[:len(fields)-1] {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed timestamp %q", s)
		}
		total = total*60 + float64(n)
	}
	secs, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	return total*60 + secs, nil
}

// isDigitOnly checks if a string contains only digits.
func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
