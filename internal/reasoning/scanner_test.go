package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScannerPlainText(t *testing.T) {
	s := NewScanner()
	d, r := s.Write("hello world")
	assert.Equal(t, "hello world", d)
	assert.Empty(t, r)

	d, r = s.Finish()
	assert.Empty(t, d)
	assert.Empty(t, r)
	assert.Equal(t, "hello world", s.Display())
	assert.Empty(t, s.Reasoning())
}

func TestScannerSingleDelta(t *testing.T) {
	s := NewScanner()
	d, r := s.Write("before <think>pondering</think> after")
	s.Finish()

	assert.Equal(t, "before  after", d)
	assert.Equal(t, "pondering", r)
	assert.Equal(t, "before  after", s.Display())
	assert.Equal(t, "pondering", s.Reasoning())
}

func TestScannerMarkerSplitAcrossDeltas(t *testing.T) {
	s := NewScanner()

	var display, reasoning string
	for _, delta := range []string{"ans", "wer <th", "ink>deep", " thought</th", "ink> done"} {
		d, r := s.Write(delta)
		display += d
		reasoning += r
	}
	d, r := s.Finish()
	display += d
	reasoning += r

	assert.Equal(t, "answer  done", display)
	assert.Equal(t, "deep thought", reasoning)
}

func TestScannerCharacterAtATime(t *testing.T) {
	s := NewScanner()
	input := "a<think>bc</think>d"

	var display, reasoning string
	for _, ch := range input {
		d, r := s.Write(string(ch))
		display += d
		reasoning += r
	}
	d, r := s.Finish()
	display += d
	reasoning += r

	assert.Equal(t, "ad", display)
	assert.Equal(t, "bc", reasoning)
}

func TestScannerUnclosedMarkerAtEndOfStream(t *testing.T) {
	s := NewScanner()
	s.Write("visible <think>never closed")

	_, r := s.Finish()
	assert.Empty(t, r) // nothing pending to flush

	assert.Equal(t, "visible ", s.Display())
	assert.Equal(t, "never closed", s.Reasoning())
}

func TestScannerFalseMarkerPrefix(t *testing.T) {
	s := NewScanner()

	// "<th" looks like a marker start but "<that" is ordinary text.
	var display string
	d, _ := s.Write("a <th")
	display += d
	d, _ = s.Write("at was easy")
	display += d
	d, _ = s.Finish()
	display += d

	assert.Equal(t, "a <that was easy", display)
}

func TestScannerAngleBracketAtEndFlushedByFinish(t *testing.T) {
	s := NewScanner()
	d, _ := s.Write("x <")
	assert.Equal(t, "x ", d)

	d, _ = s.Finish()
	assert.Equal(t, "<", d)
	assert.Equal(t, "x <", s.Display())
}

func TestScannerMultipleReasoningSegments(t *testing.T) {
	s := NewScanner()
	s.Write("a<think>1</think>b<think>2</think>c")
	s.Finish()

	assert.Equal(t, "abc", s.Display())
	assert.Equal(t, "12", s.Reasoning())
}

func TestScannerFinishIdempotent(t *testing.T) {
	s := NewScanner()
	s.Write("text")
	s.Finish()

	d, r := s.Finish()
	assert.Empty(t, d)
	assert.Empty(t, r)
}
