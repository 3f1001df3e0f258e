package epub_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/MrWong99/tomeglot/internal/document/epub"
	"github.com/MrWong99/tomeglot/internal/engine"
	"github.com/MrWong99/tomeglot/internal/prompt"
	"github.com/MrWong99/tomeglot/pkg/provider/llm"
	"github.com/MrWong99/tomeglot/pkg/provider/llm/mock"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const contentOPF = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="3.0" unique-identifier="uid">
  <metadata>
    <dc:title>Test Book</dc:title>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`

func makeEPUB(t *testing.T, chapter string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("application/epub+zip"))

	for name, content := range map[string]string{
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf":      contentOPF,
		"OEBPS/chapter1.xhtml":   chapter,
		"OEBPS/style.css":        "p { margin: 0 }",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readEntry(t *testing.T, archive []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			content, err := io.ReadAll(rc)
			if err != nil {
				t.Fatal(err)
			}
			return string(content)
		}
	}
	t.Fatalf("entry %q not found", name)
	return ""
}

// echoProvider wraps the prompt payload in markers with a prefix, keeping
// placeholders intact.
func echoProvider(prefix string) *mock.Provider {
	return &mock.Provider{
		GenerateFunc: func(ctx context.Context, p string) (string, error) {
			payload := p
			if i := strings.Index(p, llm.InputMarkerOpen); i >= 0 {
				payload = p[i+len(llm.InputMarkerOpen):]
				if j := strings.Index(payload, llm.InputMarkerClose); j >= 0 {
					payload = payload[:j]
				}
			}
			return llm.OutputMarkerOpen + prefix + strings.TrimSpace(payload) + llm.OutputMarkerClose, nil
		},
	}
}

func newProcessor(p llm.Provider) *epub.Processor {
	eng := engine.New(p, prompt.Builder{Source: "English", Target: "French"})
	return &epub.Processor{Engine: eng}
}

const chapter = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>One</title></head>
<body>
  <p>The first paragraph has <em>emphasis</em> inside it.</p>
  <p>The second paragraph is plain.</p>
</body>
</html>`

func TestTranslate(t *testing.T) {
	proc := newProcessor(echoProvider("FR: "))
	out, stats, err := proc.Translate(context.Background(), makeEPUB(t, chapter), engine.Hooks{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if stats.Total != 2 || stats.Completed != 2 || stats.Failed != 0 {
		t.Errorf("stats: %+v", stats)
	}

	got := readEntry(t, out, "OEBPS/chapter1.xhtml")
	if !strings.HasPrefix(got, "<?xml") {
		t.Errorf("chapter lost XML declaration: %q", got[:40])
	}
	if !strings.Contains(got, "FR: ") {
		t.Errorf("chapter not translated: %q", got)
	}
	if !strings.Contains(got, "<em>emphasis</em>") {
		t.Errorf("inline markup lost: %q", got)
	}
	if strings.Contains(got, "⟦TAG") {
		t.Errorf("placeholders leaked into output: %q", got)
	}

	opf := readEntry(t, out, "OEBPS/content.opf")
	if !strings.Contains(opf, "<dc:language>fr</dc:language>") {
		t.Errorf("dc:language not updated: %q", opf)
	}
	if !strings.Contains(opf, "<dc:title>Test Book</dc:title>") {
		t.Errorf("unrelated metadata damaged: %q", opf)
	}
}

func TestTranslate_MimetypeFirstAndStored(t *testing.T) {
	proc := newProcessor(echoProvider("FR: "))
	out, _, err := proc.Translate(context.Background(), makeEPUB(t, chapter), engine.Hooks{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" {
		t.Fatalf("first entry is %q, want mimetype", zr.File[0].Name)
	}
	if zr.File[0].Method != zip.Store {
		t.Errorf("mimetype method = %d, want Store", zr.File[0].Method)
	}
	for _, f := range zr.File[1:] {
		if f.Method != zip.Deflate {
			t.Errorf("entry %q method = %d, want Deflate", f.Name, f.Method)
		}
	}
}

func TestTranslate_PlaceholderLossDeclined(t *testing.T) {
	// The model drops every placeholder; the block must be declined and an
	// error marker carrying the original markup spliced in instead.
	p := &mock.Provider{GenerateFunc: func(ctx context.Context, _ string) (string, error) {
		return llm.OutputMarkerOpen + "texte sans balises" + llm.OutputMarkerClose, nil
	}}
	proc := newProcessor(p)

	src := makeEPUB(t, `<html><body><p>Keep the <em>markup</em> safe.</p></body></html>`)
	out, stats, err := proc.Translate(context.Background(), src, engine.Hooks{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if stats.Failed != 1 || stats.Completed != 0 {
		t.Errorf("stats: %+v", stats)
	}

	got := readEntry(t, out, "OEBPS/chapter1.xhtml")
	if !strings.Contains(got, "[TRANSLATION_ERROR SEGMENT 1]") {
		t.Errorf("error marker missing: %q", got)
	}
	if !strings.Contains(got, "<em>markup</em>") {
		t.Errorf("original markup not preserved in marker: %q", got)
	}
}

func TestTranslate_ContextRollsAcrossBlocks(t *testing.T) {
	p := echoProvider("FR: ")
	proc := newProcessor(p)

	if _, _, err := proc.Translate(context.Background(), makeEPUB(t, chapter), engine.Hooks{}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(p.Calls) != 2 {
		t.Fatalf("got %d provider calls, want 2", len(p.Calls))
	}
	if !strings.Contains(p.Calls[1].Prompt, "FR: The first paragraph") {
		t.Errorf("second block prompt missing rolling context: %q", p.Calls[1].Prompt)
	}
}

func TestTranslate_NoTranslatableContent(t *testing.T) {
	src := makeEPUB(t, `<html><body><p>   </p></body></html>`)
	proc := newProcessor(&mock.Provider{})

	out, stats, err := proc.Translate(context.Background(), src, engine.Hooks{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if stats.Completed != 0 || stats.Failed != 0 {
		t.Errorf("stats: %+v", stats)
	}
	if !bytes.Equal(out, src) {
		t.Error("archive rewritten despite no translatable content")
	}
}

// TestTranslate_InterruptBetweenBlocks verifies the interrupt poll: the block
// in flight finishes and is spliced in, the rest stays untranslated.
func TestTranslate_InterruptBetweenBlocks(t *testing.T) {
	interrupted := false
	p := &mock.Provider{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		payload := prompt
		if i := strings.Index(prompt, llm.InputMarkerOpen); i >= 0 {
			payload = prompt[i+len(llm.InputMarkerOpen):]
			if j := strings.Index(payload, llm.InputMarkerClose); j >= 0 {
				payload = payload[:j]
			}
		}
		interrupted = true
		return llm.OutputMarkerOpen + "FR: " + strings.TrimSpace(payload) + llm.OutputMarkerClose, nil
	}}
	proc := newProcessor(p)

	out, stats, err := proc.Translate(context.Background(), makeEPUB(t, chapter), engine.Hooks{
		Interrupted: func() bool { return interrupted },
	})
	if !errors.Is(err, engine.ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if out == nil {
		t.Fatal("partial archive not returned")
	}
	if stats.Total != 2 || stats.Completed != 1 {
		t.Errorf("stats: %+v, want one of two blocks done", stats)
	}

	got := readEntry(t, out, "OEBPS/chapter1.xhtml")
	if !strings.Contains(got, "FR: The first paragraph") {
		t.Errorf("partial translation not spliced: %q", got)
	}
	if !strings.Contains(got, "The second paragraph is plain.") {
		t.Errorf("untranslated content lost: %q", got)
	}
}

func TestTranslate_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &mock.Provider{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		payload := prompt
		if i := strings.Index(prompt, llm.InputMarkerOpen); i >= 0 {
			payload = prompt[i+len(llm.InputMarkerOpen):]
			if j := strings.Index(payload, llm.InputMarkerClose); j >= 0 {
				payload = payload[:j]
			}
		}
		cancel()
		return llm.OutputMarkerOpen + "FR: " + strings.TrimSpace(payload) + llm.OutputMarkerClose, nil
	}}
	proc := newProcessor(p)

	out, stats, err := proc.Translate(ctx, makeEPUB(t, chapter), engine.Hooks{})
	if err == nil {
		t.Fatal("want context error")
	}
	if out == nil {
		t.Fatal("partial archive not returned")
	}
	if stats.Completed != 1 {
		t.Errorf("stats: %+v, want one completed block before interrupt", stats)
	}

	got := readEntry(t, out, "OEBPS/chapter1.xhtml")
	if !strings.Contains(got, "FR: The first paragraph") {
		t.Errorf("partial translation not spliced: %q", got)
	}
	if !strings.Contains(got, "The second paragraph is plain.") {
		t.Errorf("untranslated content lost: %q", got)
	}
}
