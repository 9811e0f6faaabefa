// Package reasoning separates model "thinking" text from display text
// as deltas arrive. The reasoning sub-channel is delimited by <think>
// and </think> markers inside the main output stream; markers may be
// split across deltas and the close marker may never arrive.
package reasoning

import "strings"

const (
	openMarker  = "<think>"
	closeMarker = "</think>"
)

// Scanner incrementally splits a token stream into display and
// reasoning accumulation buffers. It keeps an explicit open/unclosed
// state instead of re-parsing the whole buffer on every delta.
type Scanner struct {
	display   strings.Builder
	reasoning strings.Builder

	inReasoning bool
	pending     string // tail that may still turn out to be a marker prefix
	finished    bool
}

// NewScanner returns a scanner in display state.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Write feeds the next delta and returns the display and reasoning
// fragments it confirmed. Text withheld because it could be the start
// of a split marker is released by a later Write or by Finish.
func (s *Scanner) Write(delta string) (display, reasoning string) {
	buf := s.pending + delta
	s.pending = ""

	var outDisplay, outReasoning strings.Builder
	for buf != "" {
		marker := openMarker
		if s.inReasoning {
			marker = closeMarker
		}

		idx := strings.Index(buf, marker)
		if idx >= 0 {
			s.emit(buf[:idx], &outDisplay, &outReasoning)
			s.inReasoning = !s.inReasoning
			buf = buf[idx+len(marker):]
			continue
		}

		// No full marker. Hold back the longest tail that is still a
		// viable marker prefix; everything before it is settled.
		hold := markerPrefixLen(buf, marker)
		s.emit(buf[:len(buf)-hold], &outDisplay, &outReasoning)
		s.pending = buf[len(buf)-hold:]
		buf = ""
	}

	return outDisplay.String(), outReasoning.String()
}

func (s *Scanner) emit(text string, display, reasoning *strings.Builder) {
	if text == "" {
		return
	}
	if s.inReasoning {
		s.reasoning.WriteString(text)
		reasoning.WriteString(text)
	} else {
		s.display.WriteString(text)
		display.WriteString(text)
	}
}

// markerPrefixLen returns the length of the longest suffix of buf that
// is a proper prefix of marker.
func markerPrefixLen(buf, marker string) int {
	max := len(marker) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(marker, buf[len(buf)-n:]) {
			return n
		}
	}
	return 0
}

// Finish flushes any held-back text and implicitly closes an unclosed
// reasoning segment. Returns the final display and reasoning fragments
// released by the flush.
func (s *Scanner) Finish() (display, reasoning string) {
	if s.finished {
		return "", ""
	}
	s.finished = true

	var outDisplay, outReasoning strings.Builder
	s.emit(s.pending, &outDisplay, &outReasoning)
	s.pending = ""
	s.inReasoning = false
	return outDisplay.String(), outReasoning.String()
}

// Display returns the accumulated display content.
func (s *Scanner) Display() string {
	return s.display.String()
}

// Reasoning returns the accumulated reasoning content.
func (s *Scanner) Reasoning() string {
	return s.reasoning.String()
}
