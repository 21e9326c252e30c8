// Package security implements upload validation for documents accepted by
// the ingestion API: size caps, extension whitelisting, MIME sniffing,
// structural signature checks, and conservative malicious-content
// heuristics. False positives here are preferable to silent acceptance.
package security

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	docerrors "github.com/standardbeagle/docparse/internal/errors"
)

// pdfMagic is the canonical PDF header signature, which must appear within
// the first 1KB of the file.
var pdfMagic = []byte("%PDF-")

const (
	headerScanWindow = 1024
	trailerScanWindow = 1024
)

// maliciousTokens are conservative indicators of active-content PDFs.
// Presence of any of these in the raw byte stream is treated as suspected
// malicious content; this is a coarse scan over undecoded object streams,
// not a full PDF object-graph walk.
var maliciousTokens = [][]byte{
	[]byte("/JS"),
	[]byte("/JavaScript"),
	[]byte("/Launch"),
}

// embeddedExecutableRe flags an /EmbeddedFile paired with an executable
// subtype, and an /OpenAction referencing an executable verb.
var embeddedExecutableRe = regexp.MustCompile(`/EmbeddedFile[\s\S]{0,512}?/Subtype\s*/(?:application/x-msdownload|exe|x-executable)`)
var openActionExecRe = regexp.MustCompile(`/OpenAction[\s\S]{0,256}?/S\s*/(?:Launch|JavaScript)`)

// FileValidator enforces the upload checks from spec §4.1, in order.
type FileValidator struct {
	MaxFileSize     int64
	MaxSyncFileSize int64
}

// NewFileValidator creates a validator with the given size caps.
func NewFileValidator(maxFileSize, maxSyncFileSize int64) *FileValidator {
	return &FileValidator{MaxFileSize: maxFileSize, MaxSyncFileSize: maxSyncFileSize}
}

// Info is the descriptive metadata returned on successful validation.
type Info struct {
	Size          int64
	MIME          string
	PageCountHint int
	Hash          string
}

// Validate runs the ordered check sequence from spec §4.1 against the raw
// bytes and claimed filename. sync indicates whether the stricter
// synchronous size cap applies.
func (fv *FileValidator) Validate(data []byte, filename string, sync bool) (*Info, *docerrors.Error) {
	size := int64(len(data))

	// 1. Size.
	if size == 0 {
		return nil, docerrors.New(docerrors.KindEmpty, "uploaded file is empty")
	}
	limit := fv.MaxFileSize
	if sync {
		limit = fv.MaxSyncFileSize
	}
	if size > limit {
		msg := fmt.Sprintf("file is %d bytes, exceeds limit of %d bytes", size, limit)
		if sync {
			msg += "; retry via POST /parse/async for larger files"
		}
		return nil, docerrors.New(docerrors.KindTooLarge, msg)
	}

	// 2. Extension whitelist.
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" {
		return nil, docerrors.New(docerrors.KindWrongExtension, fmt.Sprintf("extension %q is not .pdf", ext))
	}

	// 3. MIME sniff: canonical PDF magic within the first 1KB.
	window := data
	if len(window) > headerScanWindow {
		window = window[:headerScanWindow]
	}
	if !bytes.Contains(window, pdfMagic) {
		return nil, docerrors.New(docerrors.KindNotPDF, "missing %PDF- signature in header")
	}

	// 4. Structural signature: trailing %%EOF within the last 1KB.
	// Absence is a warning only, tolerant parsers accept truncated PDFs.
	tail := data
	if len(tail) > trailerScanWindow {
		tail = tail[len(tail)-trailerScanWindow:]
	}
	hasEOF := bytes.Contains(tail, []byte("%%EOF"))

	// 5. Malicious-content heuristics.
	if err := fv.scanMalicious(data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	info := &Info{
		Size: size,
		MIME: "application/pdf",
		Hash: hex.EncodeToString(sum[:]),
	}
	if !hasEOF {
		info.PageCountHint = 0 // unknown; tolerant parse may still succeed
	}
	return info, nil
}

// scanMalicious rejects tokens indicating active content. Conservative by
// design: a false positive here is cheaper than silently accepting a
// booby-trapped PDF.
func (fv *FileValidator) scanMalicious(data []byte) *docerrors.Error {
	for _, tok := range maliciousTokens {
		if bytes.Contains(data, tok) {
			return docerrors.New(docerrors.KindSuspectedMalicious,
				fmt.Sprintf("found disallowed token %q in document stream", tok))
		}
	}
	if embeddedExecutableRe.Match(data) {
		return docerrors.New(docerrors.KindSuspectedMalicious, "embedded executable payload detected")
	}
	if openActionExecRe.Match(data) {
		return docerrors.New(docerrors.KindSuspectedMalicious, "OpenAction references an executable verb")
	}
	return nil
}

// SanitizeFilename replaces path separators with underscores and removes
// control characters and ".." sequences from a client-supplied filename,
// then trims surrounding dots. If the result is empty, it synthesizes one
// from the content hash so every job still has a stable, safe name.
func SanitizeFilename(name, contentHash string) (string, *docerrors.Error) {
	base := filepath.Base(strings.ReplaceAll(strings.ReplaceAll(name, "/", "_"), "\\", "_"))

	var b strings.Builder
	for _, r := range base {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.ReplaceAll(cleaned, "..", "")
	cleaned = strings.Trim(cleaned, ".")

	if cleaned == "" {
		if contentHash == "" {
			return "", docerrors.New(docerrors.KindInvalidFilename, "filename is empty and no content hash is available")
		}
		short := contentHash
		if len(short) > 16 {
			short = short[:16]
		}
		cleaned = short + ".pdf"
	}
	return cleaned, nil
}
