// Package document routes input files to the right format processor.
//
// Detection goes by file extension first and falls back to content sniffing,
// so a subtitle file arriving as upload.tmp still ends up in the SRT path.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Type identifies a supported input format.
type Type string

const (
	TypeText Type = "txt"
	TypeEPUB Type = "epub"
	TypeSRT  Type = "srt"
)

// ErrUnsupported reports a file that is neither plain text, EPUB nor SRT.
var ErrUnsupported = errors.New("document: unsupported file type")

// zipMagic is the local-file-header signature every zip archive starts with.
var zipMagic = []byte("PK\x03\x04")

// srtTimingRe matches an SRT timing line anywhere in the first few blocks.
var srtTimingRe = regexp.MustCompile(`(?m)^\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)

// Detect determines the document type from the file name, falling back to
// content sniffing when the extension is unknown. Files matching neither
// get [ErrUnsupported].
func Detect(name string, content []byte) (Type, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return TypeText, nil
	case ".epub":
		return TypeEPUB, nil
	case ".srt":
		return TypeSRT, nil
	}
	if t, ok := Sniff(content); ok {
		return t, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupported, filepath.Ext(name))
}

// Sniff guesses the document type from content alone. EPUBs are zip archives
// carrying META-INF/container.xml; SRT files show a timing line early on.
// Anything else that looks textual counts as plain text.
func Sniff(content []byte) (Type, bool) {
	if bytes.HasPrefix(content, zipMagic) {
		if bytes.Contains(content, []byte("META-INF/container.xml")) || bytes.Contains(content, []byte("application/epub+zip")) {
			return TypeEPUB, true
		}
		return "", false
	}
	head := content
	if len(head) > 4096 {
		head = head[:4096]
	}
	if srtTimingRe.Match(head) {
		return TypeSRT, true
	}
	if !bytes.ContainsRune(content, 0) {
		return TypeText, true
	}
	return "", false
}

// OutputName derives the output file name from the input name and the target
// language, e.g. book.epub + "French" → book_french.epub.
func OutputName(input, targetLanguage string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	suffix := strings.ReplaceAll(strings.ToLower(targetLanguage), " ", "_")
	return fmt.Sprintf("%s_%s%s", base, suffix, ext)
}
