package filter

import (
	"strings"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/tracked"
)

func checkMap(t *testing.T, out tracked.Text, src string) {
	t.Helper()
	if !out.Valid() {
		t.Fatalf("map length %d does not match %q", len(out.Map), out.Text)
	}
	n := len([]rune(src))
	for i, v := range out.Map {
		if v < 0 || v >= n {
			t.Fatalf("map[%d]=%d outside source of %d runes", i, v, n)
		}
	}
}

func TestSymbolVerbalizationChinese(t *testing.T) {
	opts := DefaultOptions()
	opts.Language = "zh-CN"
	src := "3 < 5"
	out := Apply(src, opts)
	checkMap(t, out, src)
	if out.Text != "3 小于 5" {
		t.Fatalf("unexpected output %q", out.Text)
	}
}

func TestSymbolVerbalizationEnglish(t *testing.T) {
	src := "1 + 1 = 2 and 4 >= 3"
	out := Apply(src, DefaultOptions())
	checkMap(t, out, src)
	if out.Text != "1 plus 1 equals 2 and 4 greater than or equal to 3" {
		t.Fatalf("unexpected output %q", out.Text)
	}
}

func TestSymbolWordsMapToTheGlyph(t *testing.T) {
	src := "3 < 5 and 7 >= 6"
	out := Apply(src, DefaultOptions())
	checkMap(t, out, src)
	if out.Text != "3 less than 5 and 7 greater than or equal to 6" {
		t.Fatalf("unexpected output %q", out.Text)
	}
	runes := []rune(src)
	for _, word := range []string{"less", "than"} {
		i := len([]rune(out.Text[:strings.Index(out.Text, word)]))
		if got := runes[out.Map[i]]; got != '<' {
			t.Fatalf("%q maps to %q, want '<'", word, got)
		}
	}
	i := len([]rune(out.Text[:strings.Index(out.Text, "greater")]))
	if out.Map[i] != 12 {
		t.Fatalf("greater maps to %d, want 12", out.Map[i])
	}
}

func TestHTMLTagsRemovedButComparisonsKept(t *testing.T) {
	src := `<span class="x">Hi</span> there<br/>`
	out := Apply(src, DefaultOptions())
	checkMap(t, out, src)
	if out.Text != "Hi there" {
		t.Fatalf("unexpected output %q", out.Text)
	}

	src = "a <b and c> d"
	out = Apply(src, DefaultOptions())
	checkMap(t, out, src)
	if out.Text != "a less than b and c greater than d" {
		t.Fatalf("unexpected output %q", out.Text)
	}
}

func TestLinksCollapseToCaption(t *testing.T) {
	src := "Click [here](http://example.com) or [[Internal|Link]]."
	for _, keepURLs := range []bool{false, true} {
		opts := DefaultOptions()
		opts.KeepURLs = keepURLs
		out := Apply(src, opts)
		checkMap(t, out, src)
		if !strings.Contains(out.Text, "Click here or Link.") {
			t.Fatalf("keepURLs=%v: unexpected output %q", keepURLs, out.Text)
		}
		if strings.Contains(out.Text, "http") {
			t.Fatalf("keepURLs=%v: url leaked into %q", keepURLs, out.Text)
		}
		// caption runes keep their own offsets
		i := strings.Index(out.Text, "here")
		if out.Map[i] != 7 || out.Map[i+3] != 10 {
			t.Fatalf("caption mapped to %v", out.Map[i:i+4])
		}
	}
}

func TestBareURLHandling(t *testing.T) {
	src := "See https://example.com/page for details."
	out := Apply(src, DefaultOptions())
	if strings.Contains(out.Text, "example.com") {
		t.Fatalf("bare url should be removed, got %q", out.Text)
	}
	opts := DefaultOptions()
	opts.KeepURLs = true
	out = Apply(src, opts)
	if !strings.Contains(out.Text, "https://example.com/page") {
		t.Fatalf("bare url should be kept, got %q", out.Text)
	}
}

func TestMarkdownStructureStripped(t *testing.T) {
	src := strings.Join([]string{
		"---",
		"title: Note",
		"---",
		"# Heading",
		"",
		"Some **bold** and _italic_ text with `code` inside.",
		"",
		"```go",
		"x := 1 < 2",
		"```",
		"",
		"> [!note] Callout title",
		"> quoted line",
		"",
		"- item one",
		"- [ ] task two",
		"",
		"Math $x^2$ inline. %%hidden%% ![img](a.png) done 🎉",
		"",
		"***",
		"",
		"",
		"",
		"End ^block-1",
	}, "\n")
	out := Apply(src, DefaultOptions())
	checkMap(t, out, src)

	want := strings.Join([]string{
		"Heading",
		"",
		"Some bold and italic text with inside.",
		"",
		"Callout title",
		"quoted line",
		"",
		"item one",
		"task two",
		"",
		"Math inline. done",
		"",
		"End",
	}, "\n")
	if out.Text != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out.Text, want)
	}
	if got := []rune(src)[out.Map[0]]; got != 'H' {
		t.Fatalf("first rune maps to %q", got)
	}
}

func TestTableCellsBecomeCommaSeparated(t *testing.T) {
	src := "| a | b |\n|---|---|\n| 1 | 2 |"
	out := Apply(src, DefaultOptions())
	checkMap(t, out, src)
	if out.Text != "a, b\n1, 2" {
		t.Fatalf("unexpected output %q", out.Text)
	}
}

func TestFiltersCanBeDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Code = false
	out := Apply("run `make` now", opts)
	if out.Text != "run make now" {
		t.Fatalf("inline code content should be kept without backticks, got %q", out.Text)
	}
}

func TestMapIsNonDecreasingWithoutReordering(t *testing.T) {
	src := "Alpha *beta* [gamma](x) delta.\n\nEpsilon, zeta."
	out := Apply(src, DefaultOptions())
	checkMap(t, out, src)
	for i := 1; i < len(out.Map); i++ {
		if out.Map[i] < out.Map[i-1] {
			t.Fatalf("map decreases at %d: %v", i, out.Map)
		}
	}
}

func TestAllWhitespaceDocument(t *testing.T) {
	out := Apply("   \n\n  ", DefaultOptions())
	if out.Text != "" || len(out.Map) != 0 {
		t.Fatalf("expected empty output, got %q", out.Text)
	}
}
