package channels

import (
	"strings"
	"time"
	"unicode/utf8"
)

// FlushMode controls when a draft stream emits chunks before stream end.
type FlushMode string

const (
	// FlushOff emits only when the accumulated text reaches the size limit.
	FlushOff FlushMode = "off"
	// FlushPartial behaves like FlushOff for emission; callers additionally
	// read Buffered for live-edit previews on platforms that support them.
	FlushPartial FlushMode = "partial"
	// FlushBlock also emits at caller-signalled natural breaks (paragraph
	// boundaries), preferring a boundary split over a mid-text split.
	FlushBlock FlushMode = "block"
)

// DefaultChunkLimit is the outbound text chunk size in characters.
const DefaultChunkLimit = 4000

// DraftStream coalesces streamed reply fragments into platform-sized
// chunks. Concatenating the emitted chunks always reproduces the
// concatenation of pushed fragments: the stream never drops or reorders
// text. No emitted chunk exceeds the limit; a single fragment larger than
// the limit is split at the limit.
//
// One DraftStream serves one outbound reply; it is not safe for concurrent
// use (fragments for a reply arrive on one goroutine by construction).
type DraftStream struct {
	limit       int
	mode        FlushMode
	emit        func(chunk string)
	buf         strings.Builder
	boundary    int // rune offset of the latest marked boundary in buf, -1 = none
	lastFlushAt time.Time
	closed      bool
}

// NewDraftStream creates a stream emitting chunks of at most limit runes
// through emit, in order.
func NewDraftStream(limit int, mode FlushMode, emit func(chunk string)) *DraftStream {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	return &DraftStream{
		limit:    limit,
		mode:     mode,
		emit:     emit,
		boundary: -1,
	}
}

// Push appends a fragment, emitting chunks whenever the buffer reaches the
// size limit.
func (d *DraftStream) Push(fragment string) {
	if d.closed || fragment == "" {
		return
	}
	d.buf.WriteString(fragment)
	d.drainFull()
}

// MarkBoundary signals a natural break (e.g. a paragraph ended). In block
// mode the buffered text up to the boundary is flushed; other modes only
// remember the position so a later over-limit split can prefer it.
func (d *DraftStream) MarkBoundary() {
	if d.closed {
		return
	}
	d.boundary = utf8.RuneCountInString(d.buf.String())
	if d.mode == FlushBlock && d.boundary > 0 {
		d.flushTo(d.boundary)
	}
}

// Buffered returns the not-yet-emitted text (used for live-edit previews
// in partial mode).
func (d *DraftStream) Buffered() string { return d.buf.String() }

// LastFlushAt returns the time of the most recent emission.
func (d *DraftStream) LastFlushAt() time.Time { return d.lastFlushAt }

// Close flushes any remaining buffered text as a final chunk (even below
// the threshold) and ends the stream. Further pushes are ignored.
func (d *DraftStream) Close() {
	if d.closed {
		return
	}
	d.drainFull()
	if d.buf.Len() > 0 {
		d.flushTo(utf8.RuneCountInString(d.buf.String()))
	}
	d.closed = true
}

// drainFull emits chunks while the buffer holds at least limit runes.
// Block mode splits at the latest marked boundary when one fits under the
// limit; otherwise the split lands exactly at the limit.
func (d *DraftStream) drainFull() {
	for utf8.RuneCountInString(d.buf.String()) >= d.limit {
		cut := d.limit
		if d.mode == FlushBlock && d.boundary > 0 && d.boundary <= d.limit {
			cut = d.boundary
		}
		d.flushTo(cut)
	}
}

// flushTo emits the first n runes of the buffer (capped at limit per
// chunk) and keeps the remainder.
func (d *DraftStream) flushTo(n int) {
	s := d.buf.String()
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	for n > 0 {
		cut := n
		if cut > d.limit {
			cut = d.limit
		}
		d.emit(string(runes[:cut]))
		d.lastFlushAt = time.Now()
		runes = runes[cut:]
		n -= cut
	}
	d.buf.Reset()
	d.buf.WriteString(string(runes))
	d.boundary = -1
}
