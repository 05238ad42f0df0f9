package pdftext

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Windows-1252 maps 0x80..0x9F to printable characters where ISO-8859-1 has
// control codes. Indices with 0 are undefined in the codepage.
var cp1252High = [32]rune{
	'€', 0, '‚', 'ƒ', '„', '…', '†', '‡',
	'ˆ', '‰', 'Š', '‹', 'Œ', 0, 'Ž', 0,
	0, '‘', '’', '“', '”', '•', '–', '—',
	'˜', '™', 'š', '›', 'œ', 0, 'ž', 'Ÿ',
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	prePunctRe   = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	trailSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Normalize makes s safe to hand to downstream consumers: the result is
// always valid UTF-8 with tidy whitespace. Invalid byte sequences are
// transcoded from Windows-1252/ISO-8859-1 rather than dropped, so Latin-one
// accented text in legacy PDFs survives.
func Normalize(s string) string {
	if !utf8.ValidString(s) {
		s = transcodeLegacy(s)
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r':
			// handled below via the CRLF rewrite
			sb.WriteRune(r)
		case r == '\t' || r == '\n':
			sb.WriteRune(r)
		case r < 0x20 || r == 0x7F:
			// strip C0 controls and DEL
		case r == utf8.RuneError:
			// invalid sequence survived transcoding; drop it
		default:
			sb.WriteRune(r)
		}
	}
	s = sb.String()

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = trailSpaceRe.ReplaceAllString(s, "")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	s = prePunctRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// transcodeLegacy reinterprets a byte string that is not valid UTF-8 as
// Windows-1252 first (a strict superset of the printable range of
// ISO-8859-1), falling back to a forced Latin-1 mapping for the bytes
// Windows-1252 leaves undefined. Pure ASCII passes through untouched.
func transcodeLegacy(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b < 0x80:
			sb.WriteByte(b)
		case b >= 0x80 && b <= 0x9F:
			if r := cp1252High[b-0x80]; r != 0 {
				sb.WriteRune(r)
			} else {
				sb.WriteRune(rune(b)) // forced ISO-8859-1
			}
		default:
			sb.WriteRune(rune(b)) // ISO-8859-1
		}
	}
	return sb.String()
}
