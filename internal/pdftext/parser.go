// Package pdftext recovers plain text from raw PDF bytes without consulting
// the cross-reference table, so it keeps working on the routinely
// non-conformant PDFs found in the wild. It is deliberately library-free:
// every strategy operates on the raw byte buffer.
package pdftext

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ObjectRecord is one indirect object found by the permissive scan.
type ObjectRecord struct {
	Number     int
	Generation int
	Body       []byte
}

var (
	objectRe = regexp.MustCompile(`(?s)(\d+)\s+(\d+)\s+obj\b(.*?)endobj`)
	streamRe = regexp.MustCompile(`(?s)stream\r?\n?(.*?)endstream`)
	// BT..ET text-showing blocks inside a decoded content stream.
	textBlockRe = regexp.MustCompile(`(?s)BT(.*?)ET`)
	// (string) Tj, (string) ' and (string) " single-show operators.
	showRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*(?:Tj|'|")`)
	// [ ... ] TJ array-show operator; parenthesized runs are pulled out of
	// the array body and kerning numbers are ignored.
	arrayShowRe = regexp.MustCompile(`(?s)\[(.*?)\]\s*TJ`)
	literalRe   = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	hexStringRe = regexp.MustCompile(`<([0-9A-Fa-f\s]{2,})>`)

	alnum3Re = regexp.MustCompile(`[A-Za-z0-9]{3}`)
	alnumRe  = regexp.MustCompile(`[A-Za-z0-9]`)
)

// IsPDF reports whether data starts with the PDF magic.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Parse extracts whatever plain text it can from data. It never fails: a
// buffer with nothing recoverable yields "". The strategies run in a fixed
// order and the first one producing output wins:
//
//  1. decoded content streams, reading BT..ET text-showing blocks
//  2. parenthesized string literals scanned directly from object bodies
//  3. angle-bracket hex strings scanned from the whole buffer
//
// The result is always valid UTF-8 (see Normalize).
func Parse(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	objects := scanObjects(data)

	if text := extractFromStreams(data); text != "" {
		return Normalize(text)
	}
	if text := extractFromObjectLiterals(objects); text != "" {
		return Normalize(text)
	}
	if text := extractFromHexStrings(data); text != "" {
		return Normalize(text)
	}
	return ""
}

// scanObjects finds every "<n> <g> obj ... endobj" range. It tolerates xref
// corruption because it never reads the xref table; objects that fail the
// number parse are skipped.
func scanObjects(data []byte) []ObjectRecord {
	matches := objectRe.FindAllSubmatch(data, -1)
	records := make([]ObjectRecord, 0, len(matches))
	for _, m := range matches {
		num, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(m[2]))
		if err != nil {
			continue
		}
		records = append(records, ObjectRecord{Number: num, Generation: gen, Body: m[3]})
	}
	return records
}

// extractFromStreams is the primary path: every stream range is decompressed
// and its BT..ET blocks are read. A stream that decodes to garbage
// contributes nothing and never aborts the remaining streams.
func extractFromStreams(data []byte) string {
	var parts []string
	for _, m := range streamRe.FindAllSubmatch(data, -1) {
		decoded, ok := decodeStream(m[1])
		if !ok {
			continue
		}
		if text := extractTextBlocks(decoded); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// decodeStream tries, in order: zlib with header, raw deflate, deflate with a
// 2-byte offset. If none works but the raw bytes already carry text-showing
// markers the stream is treated as uncompressed content.
func decodeStream(raw []byte) ([]byte, bool) {
	if out, err := inflateZlib(raw); err == nil {
		return out, true
	}
	if out, err := inflateRaw(raw); err == nil {
		return out, true
	}
	if len(raw) > 2 {
		if out, err := inflateRaw(raw[2:]); err == nil {
			return out, true
		}
	}
	if bytes.Contains(raw, []byte("BT")) || bytes.Contains(raw, []byte("Tj")) {
		return raw, true
	}
	return nil, false
}

func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func inflateRaw(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// extractTextBlocks reads the text-showing operators of one decoded content
// stream: (s) Tj, [ .. ] TJ, and the (s) ' / (s) " move-and-show forms.
func extractTextBlocks(content []byte) string {
	var sb strings.Builder
	for _, block := range textBlockRe.FindAllSubmatch(content, -1) {
		body := block[1]

		for _, m := range showRe.FindAllSubmatch(body, -1) {
			if s := decodeLiteral(m[1]); s != "" {
				sb.WriteString(s)
				sb.WriteByte(' ')
			}
		}
		for _, arr := range arrayShowRe.FindAllSubmatch(body, -1) {
			for _, m := range literalRe.FindAllSubmatch(arr[1], -1) {
				if s := decodeLiteral(m[1]); s != "" {
					sb.WriteString(s)
				}
			}
			sb.WriteByte(' ')
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

// extractFromObjectLiterals is fallback A: parenthesized literals read
// straight from object bodies, keeping only runs with at least three
// consecutive alphanumerics to filter out binary noise.
func extractFromObjectLiterals(objects []ObjectRecord) string {
	var sb strings.Builder
	for _, obj := range objects {
		for _, m := range literalRe.FindAllSubmatch(obj.Body, -1) {
			s := decodeLiteral(m[1])
			if alnum3Re.MatchString(s) {
				sb.WriteString(s)
				sb.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// extractFromHexStrings is fallback B: angle-bracket hex strings decoded
// pairwise across the whole buffer, printable ASCII only.
func extractFromHexStrings(data []byte) string {
	var sb strings.Builder
	for _, m := range hexStringRe.FindAllSubmatch(data, -1) {
		decoded := decodeHexString(m[1])
		if len(alnumRe.FindAllString(decoded, 2)) >= 2 {
			sb.WriteString(decoded)
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

func decodeHexString(raw []byte) string {
	var digits []byte
	for _, b := range raw {
		if (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') {
			digits = append(digits, b)
		}
	}
	var sb strings.Builder
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		b := byte(v)
		switch {
		case b == '\r' || b == '\n':
			sb.WriteByte(' ')
		case b >= 32 && b <= 126:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// decodeLiteral resolves PDF string escapes: \n \r \t \( \) \\ and the
// three-digit octal form \ddd.
func decodeLiteral(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '(', ')', '\\':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

var pageTypeRe = regexp.MustCompile(`/Type\s*/Page\b`)

// PageCount approximates the number of pages by counting /Type /Page
// dictionaries. It is a hint, not a guarantee: pages inside object streams
// are invisible to it.
func PageCount(data []byte) int {
	return len(pageTypeRe.FindAll(data, -1))
}
