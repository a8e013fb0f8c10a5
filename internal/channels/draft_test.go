package channels

import (
	"strings"
	"testing"
)

func collectChunks() (*[]string, func(string)) {
	var chunks []string
	return &chunks, func(c string) { chunks = append(chunks, c) }
}

func TestDraftStream_SizeBoundedSplit(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(5, FlushOff, emit)

	d.Push("Hello, ")
	d.Push("world.")
	d.Close()

	joined := strings.Join(*chunks, "")
	if joined != "Hello, world." {
		t.Errorf("reassembly = %q, want %q", joined, "Hello, world.")
	}
	for i, c := range *chunks {
		if len([]rune(c)) > 5 {
			t.Errorf("chunk %d %q exceeds limit", i, c)
		}
	}
	if len(*chunks) < 3 {
		t.Errorf("expected at least 3 chunks for 13 runes at limit 5, got %v", *chunks)
	}
}

func TestDraftStream_Lossless(t *testing.T) {
	fragments := []string{"one ", "", "two", " three\n", "four five six seven", " 🦀🦀🦀 done"}

	for _, mode := range []FlushMode{FlushOff, FlushPartial, FlushBlock} {
		t.Run(string(mode), func(t *testing.T) {
			chunks, emit := collectChunks()
			d := NewDraftStream(7, mode, emit)
			for _, f := range fragments {
				d.Push(f)
				if strings.HasSuffix(f, "\n") {
					d.MarkBoundary()
				}
			}
			d.Close()

			want := strings.Join(fragments, "")
			if got := strings.Join(*chunks, ""); got != want {
				t.Errorf("reassembly mismatch:\n got %q\nwant %q", got, want)
			}
			for i, c := range *chunks {
				if len([]rune(c)) > 7 {
					t.Errorf("chunk %d %q exceeds limit", i, c)
				}
			}
		})
	}
}

func TestDraftStream_FinalChunkBelowThreshold(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(100, FlushOff, emit)

	d.Push("short")
	if len(*chunks) != 0 {
		t.Fatalf("nothing should be emitted below the threshold, got %v", *chunks)
	}
	d.Close()
	if len(*chunks) != 1 || (*chunks)[0] != "short" {
		t.Errorf("Close should flush the remainder, got %v", *chunks)
	}
}

func TestDraftStream_BlockModeFlushesAtBoundary(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(100, FlushBlock, emit)

	d.Push("first paragraph\n")
	d.MarkBoundary()
	if len(*chunks) != 1 || (*chunks)[0] != "first paragraph\n" {
		t.Fatalf("block mode should emit at the boundary, got %v", *chunks)
	}

	d.Push("second")
	d.Close()
	if got := strings.Join(*chunks, ""); got != "first paragraph\nsecond" {
		t.Errorf("reassembly = %q", got)
	}
}

func TestDraftStream_BlockModePrefersBoundarySplit(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(10, FlushBlock, emit)

	// Boundary at rune 6, then the buffer grows past the limit: the split
	// must land on the boundary, not mid-word at rune 10.
	d.Push("para1\n")
	d.MarkBoundary() // block mode flushes here
	d.Push("a much longer second paragraph")
	d.Close()

	if (*chunks)[0] != "para1\n" {
		t.Errorf("first chunk = %q, want boundary-aligned %q", (*chunks)[0], "para1\n")
	}
	if got := strings.Join(*chunks, ""); got != "para1\na much longer second paragraph" {
		t.Errorf("reassembly = %q", got)
	}
	for i, c := range *chunks {
		if len([]rune(c)) > 10 {
			t.Errorf("chunk %d %q exceeds limit", i, c)
		}
	}
}

func TestDraftStream_OversizeFragmentSplitAtLimit(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(4, FlushOff, emit)

	d.Push("abcdefghij") // single fragment larger than the limit
	d.Close()

	if got := strings.Join(*chunks, ""); got != "abcdefghij" {
		t.Errorf("reassembly = %q", got)
	}
	if (*chunks)[0] != "abcd" {
		t.Errorf("first chunk = %q, want split at limit", (*chunks)[0])
	}
}

func TestDraftStream_MultibyteRunesNotSplit(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(2, FlushOff, emit)

	d.Push("🦀🦀🦀")
	d.Close()

	for i, c := range *chunks {
		if !strings.HasPrefix(c, "🦀") {
			t.Errorf("chunk %d %q split a rune", i, c)
		}
	}
	if got := strings.Join(*chunks, ""); got != "🦀🦀🦀" {
		t.Errorf("reassembly = %q", got)
	}
}

func TestDraftStream_PushAfterCloseIgnored(t *testing.T) {
	chunks, emit := collectChunks()
	d := NewDraftStream(5, FlushOff, emit)
	d.Push("hi")
	d.Close()
	d.Push("late")
	d.Close()

	if got := strings.Join(*chunks, ""); got != "hi" {
		t.Errorf("text pushed after Close must be ignored, got %q", got)
	}
}
