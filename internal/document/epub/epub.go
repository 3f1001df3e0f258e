// Package epub translates EPUB e-books in place.
//
// Processing runs in three phases over the unpacked archive: collect
// translatable jobs from the spine documents, translate them with a rolling
// context shared across blocks, then splice the translations back and
// repackage. Inline markup inside paragraphs is shielded from the model by
// placeholder substitution and restored afterwards, so emphasis, links and
// spans survive the round trip.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

// ignoredTags are pruned from the walk entirely: their content is never text
// a reader sees.
var ignoredTags = map[string]bool{
	"script": true,
	"style":  true,
	"meta":   true,
	"link":   true,
}

// blockTags mark elements whose content forms a coherent paragraph-like unit
// translated as one job.
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "td": true, "th": true, "caption": true,
	"dt": true, "dd": true,
}

// archive is an EPUB zip held in memory. Entry order is preserved so the
// output archive mirrors the input.
type archive struct {
	names []string
	files map[string][]byte
}

func readArchive(data []byte) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("epub: open archive: %w", err)
	}
	a := &archive{files: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("epub: open entry %q: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("epub: read entry %q: %w", f.Name, err)
		}
		a.names = append(a.names, f.Name)
		a.files[f.Name] = content
	}
	return a, nil
}

// write repackages the archive. The EPUB container contract requires the
// mimetype entry first and stored uncompressed; everything else is deflated.
func (a *archive) write() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if content, ok := a.files["mimetype"]; ok {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
		if err != nil {
			return nil, fmt.Errorf("epub: write mimetype: %w", err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("epub: write mimetype: %w", err)
		}
	}
	for _, name := range a.names {
		if name == "mimetype" {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("epub: write entry %q: %w", name, err)
		}
		if _, err := w.Write(a.files[name]); err != nil {
			return nil, fmt.Errorf("epub: write entry %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("epub: finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []opfItemRef `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// findOPF locates the package document, preferring the container.xml
// declaration and falling back to a scan for any .opf entry.
func (a *archive) findOPF() (string, error) {
	if data, ok := a.files["META-INF/container.xml"]; ok {
		var c containerXML
		if err := xml.Unmarshal(data, &c); err == nil {
			for _, rf := range c.Rootfiles {
				if _, ok := a.files[rf.FullPath]; ok {
					return rf.FullPath, nil
				}
			}
		}
	}
	for _, name := range a.names {
		if strings.HasSuffix(strings.ToLower(name), ".opf") {
			return name, nil
		}
	}
	return "", fmt.Errorf("epub: package document (.opf) not found")
}

// spineDocuments returns the archive paths of the spine's XHTML documents in
// reading order.
func (a *archive) spineDocuments(opfPath string) ([]string, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(a.files[opfPath], &pkg); err != nil {
		return nil, fmt.Errorf("epub: parse %q: %w", opfPath, err)
	}

	byID := make(map[string]opfItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		byID[item.ID] = item
	}

	opfDir := path.Dir(opfPath)
	var docs []string
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := byID[ref.IDRef]
		if !ok || item.Href == "" {
			continue
		}
		if item.MediaType != "application/xhtml+xml" && item.MediaType != "text/html" {
			continue
		}
		docs = append(docs, path.Clean(path.Join(opfDir, item.Href)))
	}
	return docs, nil
}

var dcLanguageRe = regexp.MustCompile(`(?s)(<dc:language[^>]*>).*?(</dc:language>)`)

// setLanguage rewrites the dc:language element of the package document to
// the first two lowercase letters of the target language name. The OPF is
// edited textually so unknown metadata survives byte for byte.
func (a *archive) setLanguage(opfPath, targetLanguage string) {
	code := strings.ToLower(targetLanguage)
	if len(code) > 2 {
		code = code[:2]
	}
	a.files[opfPath] = dcLanguageRe.ReplaceAll(a.files[opfPath], []byte("${1}"+code+"${2}"))
}
