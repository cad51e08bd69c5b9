package engine

import (
	"strings"
)

const (
	deliberationOpen  = "<think>"
	deliberationClose = "</think>"
)

type filterState int

const (
	filterOutside filterState = iota
	filterInside
)

// ReasoningFilter suppresses a model's private deliberation span from
// visible output while preserving it separately. Delimiters may split
// across arbitrary chunk boundaries and a span may stretch over multiple
// reasoning invocations within one run, so the outside/inside state
// survives both chunk and invocation boundaries.
type ReasoningFilter struct {
	state        filterState
	buf          string
	deliberation strings.Builder
}

// NewReasoningFilter creates a filter in the outside state.
func NewReasoningFilter() *ReasoningFilter {
	return &ReasoningFilter{}
}

// Feed buffers chunk and returns the text that is safe to surface as
// visible output. Text inside a deliberation span accumulates separately;
// a buffer tail that is a strict prefix of a delimiter is held back for
// the next chunk.
func (f *ReasoningFilter) Feed(chunk string) string {
	f.buf += chunk

	var visible strings.Builder
	for {
		switch f.state {
		case filterOutside:
			iOpen := strings.Index(f.buf, deliberationOpen)
			iClose := strings.Index(f.buf, deliberationClose)

			if iOpen >= 0 && (iClose < 0 || iOpen < iClose) {
				visible.WriteString(f.buf[:iOpen])
				f.buf = f.buf[iOpen+len(deliberationOpen):]
				f.state = filterInside
				continue
			}
			if iClose >= 0 {
				// A closing delimiter with no opener: the opener was lost
				// (or consumed in an earlier invocation), so the preceding
				// text is deliberation overflow, not visible output.
				f.deliberation.WriteString(f.buf[:iClose])
				f.buf = f.buf[iClose+len(deliberationClose):]
				continue
			}

			hold := markerPrefixHold(f.buf, deliberationOpen, deliberationClose)
			visible.WriteString(f.buf[:len(f.buf)-hold])
			f.buf = f.buf[len(f.buf)-hold:]
			return visible.String()

		case filterInside:
			if iClose := strings.Index(f.buf, deliberationClose); iClose >= 0 {
				f.deliberation.WriteString(f.buf[:iClose])
				f.buf = f.buf[iClose+len(deliberationClose):]
				f.state = filterOutside
				continue
			}

			hold := markerPrefixHold(f.buf, deliberationClose)
			f.deliberation.WriteString(f.buf[:len(f.buf)-hold])
			f.buf = f.buf[len(f.buf)-hold:]
			return visible.String()
		}
	}
}

// TakeDeliberation extracts and clears the accumulated deliberation text.
// The outside/inside state is untouched: extraction happens per invocation
// while a span may continue into the next one.
func (f *ReasoningFilter) TakeDeliberation() string {
	text := f.deliberation.String()
	f.deliberation.Reset()
	return text
}

// Flush finalizes the filter at end of run. When inside, the remaining
// buffer is deliberation and never surfaces; when outside, a trailing
// delimiter-prefix remnant can no longer complete and is stripped, and the
// remainder is returned as visible output.
func (f *ReasoningFilter) Flush() string {
	buf := f.buf
	f.buf = ""

	if f.state == filterInside {
		f.deliberation.WriteString(buf)
		return ""
	}

	hold := markerPrefixHold(buf, deliberationOpen, deliberationClose)
	return buf[:len(buf)-hold]
}

// markerPrefixHold returns the length of the longest buffer tail that is a
// strict prefix of any of the markers.
func markerPrefixHold(buf string, markers ...string) int {
	hold := 0
	for _, marker := range markers {
		max := len(marker) - 1
		if len(buf) < max {
			max = len(buf)
		}
		for k := max; k > hold; k-- {
			if buf[len(buf)-k:] == marker[:k] {
				hold = k
				break
			}
		}
	}
	return hold
}
