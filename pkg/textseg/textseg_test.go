package textseg_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/tomeglot/pkg/textseg"
)

func TestDehyphenate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "simple break",
			in:   "a remark-\nable day",
			want: "a remarkable day",
		},
		{
			name: "break with indentation",
			in:   "trans-\n   lation",
			want: "translation",
		},
		{
			name: "crlf break",
			in:   "über-\r\nsetzen",
			want: "übersetzen",
		},
		{
			name: "hyphen mid-line untouched",
			in:   "well-known fact",
			want: "well-known fact",
		},
		{
			name: "trailing hyphen before blank stays",
			in:   "dash-\n\n-list",
			want: "dash-\n\n-list",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textseg.Dehyphenate(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefineLines_SplitsAfterTerminators(t *testing.T) {
	got := textseg.RefineLines("First sentence. Second one! Third?")
	want := []string{"First sentence.", " Second one!", " Third?"}
	if len(got) != len(want) {
		t.Fatalf("lines: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lines[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRefineLines_QuotedTerminators(t *testing.T) {
	got := textseg.RefineLines(`"Stop." He froze.`)
	want := []string{`"Stop."`, ` He froze.`}
	if len(got) != len(want) {
		t.Fatalf("lines: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lines[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRefineLines_KeepsBlankLines(t *testing.T) {
	got := textseg.RefineLines("Para one.\n\nPara two.")
	want := []string{"Para one.", "", "Para two."}
	if len(got) != len(want) {
		t.Fatalf("lines: got %v, want %v", got, want)
	}
	if got[1] != "" {
		t.Errorf("blank line: got %q, want empty", got[1])
	}
}

func TestRefineLines_NoTerminators(t *testing.T) {
	got := textseg.RefineLines("a line without any ending")
	if len(got) != 1 || got[0] != "a line without any ending" {
		t.Errorf("lines: got %v, want the untouched line", got)
	}
}

func TestEndsWithTerminator(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"A sentence.", true},
		{"Really?", true},
		{`He said: "go."`, true},
		{"a header", false},
		{"   ", false},
		{"trailing colon:", true},
		{"(parenthetical.)", true},
	}
	for _, tt := range tests {
		if got := textseg.EndsWithTerminator(tt.line); got != tt.want {
			t.Errorf("EndsWithTerminator(%q): got %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestChunks_ShortTextSingleChunk(t *testing.T) {
	chunks := textseg.Chunks("One. Two. Three.", 0)
	if len(chunks) != 1 {
		t.Fatalf("chunks: got %d, want 1", len(chunks))
	}
	c := chunks[0]
	if c.ContextBefore != "" || c.ContextAfter != "" {
		t.Errorf("contexts: got before=%q after=%q, want empty", c.ContextBefore, c.ContextAfter)
	}
	if !strings.Contains(c.Main, "One.") || !strings.Contains(c.Main, "Three.") {
		t.Errorf("main: got %q, want all three sentences", c.Main)
	}
}

func TestChunks_WhitespaceOnlyInput(t *testing.T) {
	if chunks := textseg.Chunks("   \n\n  \t ", 25); len(chunks) != 0 {
		t.Errorf("chunks: got %d, want 0 for whitespace input", len(chunks))
	}
}

// TestChunks_MainsPartitionText verifies that for terminator-dense input the
// main windows cover every sentence exactly once, in order.
func TestChunks_MainsPartitionText(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", i%3+1))
		b.WriteString(".\n")
	}
	text := b.String()

	chunks := textseg.Chunks(text, 8)
	if len(chunks) < 2 {
		t.Fatalf("chunks: got %d, want several for 40 lines at target 8", len(chunks))
	}

	var mains []string
	for _, c := range chunks {
		mains = append(mains, c.Main)
	}
	joined := strings.Join(mains, "\n")

	wantLines := textseg.RefineLines(textseg.Dehyphenate(text))
	// The final refined line is the empty string after the trailing newline;
	// whitespace-only lines may be skipped as standalone windows but must
	// otherwise survive inside mains.
	gotLines := strings.Split(joined, "\n")
	gi := 0
	for _, want := range wantLines {
		if strings.TrimSpace(want) == "" {
			// may be embedded or dropped at window edges
			if gi < len(gotLines) && gotLines[gi] == want {
				gi++
			}
			continue
		}
		if gi >= len(gotLines) {
			t.Fatalf("line %q missing from chunk mains", want)
		}
		if gotLines[gi] != want {
			t.Fatalf("line order: got %q, want %q", gotLines[gi], want)
		}
		gi++
	}
}

// TestChunks_ContextWindows verifies that middle chunks carry non-empty
// context on both sides and that context lines duplicate neighbouring mains
// rather than consuming them.
func TestChunks_ContextWindows(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("A complete sentence here.\n")
	}
	chunks := textseg.Chunks(b.String(), 8)
	if len(chunks) < 3 {
		t.Fatalf("chunks: got %d, want at least 3", len(chunks))
	}

	mid := chunks[1]
	if mid.ContextBefore == "" {
		t.Error("middle chunk: empty ContextBefore")
	}
	if mid.ContextAfter == "" {
		t.Error("middle chunk: empty ContextAfter")
	}
	if chunks[0].ContextBefore != "" {
		t.Errorf("first chunk: got ContextBefore %q, want empty", chunks[0].ContextBefore)
	}
	if last := chunks[len(chunks)-1]; last.ContextAfter != "" {
		t.Errorf("last chunk: got ContextAfter %q, want empty", last.ContextAfter)
	}
}

// TestChunks_NoTerminatorRun verifies that text with no sentence boundaries
// at all still chunks without looping or dropping content.
func TestChunks_NoTerminatorRun(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("line without punctuation\n")
	}
	chunks := textseg.Chunks(b.String(), 4)
	if len(chunks) == 0 {
		t.Fatal("chunks: got 0, want coverage of all lines")
	}
	total := 0
	for _, c := range chunks {
		total += len(strings.Split(c.Main, "\n"))
	}
	if total < 20 {
		t.Errorf("main lines: got %d, want at least 20", total)
	}
}
