package pdftext

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"math/rand"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStreamPDF assembles a minimal PDF whose single content stream is
// zlib-compressed.
func buildStreamPDF(t *testing.T, content string) []byte {
	t.Helper()

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var pdf bytes.Buffer
	pdf.WriteString("%PDF-1.4\n")
	pdf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	pdf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	pdf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>\nendobj\n")
	fmt.Fprintf(&pdf, "4 0 obj\n<< /Length %d /Filter /FlateDecode >>\nstream\n", compressed.Len())
	pdf.Write(compressed.Bytes())
	pdf.WriteString("\nendstream\nendobj\n")
	pdf.WriteString("%%EOF\n")
	return pdf.Bytes()
}

func TestParseCompressedStream(t *testing.T) {
	pdf := buildStreamPDF(t, "BT /F1 12 Tf (Hello from a compressed stream) Tj ET")

	text := Parse(pdf)
	assert.Contains(t, text, "Hello from a compressed stream")
}

func TestParseUncompressedStream(t *testing.T) {
	var pdf bytes.Buffer
	pdf.WriteString("%PDF-1.4\n")
	pdf.WriteString("1 0 obj\n<< /Length 44 >>\nstream\n")
	pdf.WriteString("BT (Uncompressed content here) Tj ET")
	pdf.WriteString("\nendstream\nendobj\n")

	text := Parse(pdf.Bytes())
	assert.Contains(t, text, "Uncompressed content here")
}

func TestParseTJArray(t *testing.T) {
	pdf := buildStreamPDF(t, "BT [(Frag) -120 (mented ) 30 (title)] TJ ET")

	text := Parse(pdf)
	assert.Contains(t, text, "Fragmented title")
}

func TestParseMoveAndShowOperators(t *testing.T) {
	pdf := buildStreamPDF(t, "BT (first line) ' 2 1 (second line) \" ET")

	text := Parse(pdf)
	assert.Contains(t, text, "first line")
	assert.Contains(t, text, "second line")
}

func TestParseEscapeSequences(t *testing.T) {
	pdf := buildStreamPDF(t, `BT (paren \( and \) tab\there \134 oct\101l) Tj ET`)

	text := Parse(pdf)
	assert.Contains(t, text, "paren ( and )")
	assert.Contains(t, text, "octAl")   // \101 -> 'A'
	assert.Contains(t, text, `\ oct`)   // \134 -> backslash
}

func TestParseFallbackOrdering(t *testing.T) {
	t.Run("StreamPathWinsOverLiterals", func(t *testing.T) {
		// The object bodies carry literals too; the stream result must win.
		pdf := buildStreamPDF(t, "BT (from the stream) Tj ET")
		pdf = append(pdf, []byte("5 0 obj\n<< /Title (from an object literal) >>\nendobj\n")...)

		text := Parse(pdf)
		assert.Contains(t, text, "from the stream")
		assert.NotContains(t, text, "from an object literal")
	})

	t.Run("LiteralFallbackWithoutStreams", func(t *testing.T) {
		pdf := []byte("%PDF-1.4\n" +
			"1 0 obj\n<< /Title (Recovered literal text) /X (ab) >>\nendobj\n")

		text := Parse(pdf)
		assert.Contains(t, text, "Recovered literal text")
		// two-char noise fails the three-consecutive-alphanumerics filter
		assert.NotContains(t, text, "ab")
	})

	t.Run("HexFallbackWithoutLiterals", func(t *testing.T) {
		// "Hex payload" in hex, no objects and no parenthesized strings.
		pdf := []byte("%PDF-1.4\n<486578207061796C6F6164>\n")

		text := Parse(pdf)
		assert.Contains(t, text, "Hex payload")
	})

	t.Run("HexFallbackIgnoresDictionaries", func(t *testing.T) {
		pdf := []byte("%PDF-1.4\n<< /Length 10 >>\n<4F4B>\n")

		text := Parse(pdf)
		assert.Equal(t, "OK", text)
	})
}

func TestParseIdempotent(t *testing.T) {
	inputs := [][]byte{
		buildStreamPDF(t, "BT (stable output) Tj ET"),
		[]byte("%PDF-1.4\n1 0 obj\n(literal) endobj"),
		{0x00, 0xFF, 0x80, 0x41},
		nil,
	}
	for _, in := range inputs {
		first := Parse(in)
		second := Parse(in)
		assert.Equal(t, first, second)
	}
}

func TestParseNeverPanicsAndAlwaysUTF8(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(4096))
		rng.Read(buf)
		if i%3 == 0 {
			// bias some buffers toward PDF-shaped content
			buf = append([]byte("%PDF-1.5\nstream\n"), buf...)
			buf = append(buf, []byte("endstream")...)
		}
		out := Parse(buf)
		assert.True(t, utf8.ValidString(out), "output must be valid UTF-8")
	}
}

func TestParseGarbageStreamDoesNotAbortOthers(t *testing.T) {
	var pdf bytes.Buffer
	pdf.WriteString("%PDF-1.4\n")
	// first stream: random bytes that decode nowhere
	pdf.WriteString("1 0 obj\nstream\n\x00\x01\x02\x03garbage\nendstream\nendobj\n")
	// second stream: plain text content
	pdf.WriteString("2 0 obj\nstream\nBT (survivor text) Tj ET\nendstream\nendobj\n")

	text := Parse(pdf.Bytes())
	assert.Contains(t, text, "survivor text")
}

func TestScanObjects(t *testing.T) {
	data := []byte("12 0 obj\n<< /A 1 >>\nendobj\n3 2 obj\n(x)\nendobj\n")

	objects := scanObjects(data)
	require.Len(t, objects, 2)
	assert.Equal(t, 12, objects[0].Number)
	assert.Equal(t, 0, objects[0].Generation)
	assert.Equal(t, 3, objects[1].Number)
	assert.Equal(t, 2, objects[1].Generation)
}

func TestPageCount(t *testing.T) {
	pdf := buildStreamPDF(t, "BT (x) Tj ET")
	assert.Equal(t, 1, PageCount(pdf))

	// /Type /Pages must not be counted as a page
	assert.Equal(t, 0, PageCount([]byte("<< /Type /Pages >>")))
	assert.Equal(t, 2, PageCount([]byte("/Type /Page ... /Type/Page")))
	assert.Equal(t, 0, PageCount(nil))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n")))
	assert.False(t, IsPDF([]byte("PK\x03\x04")))
	assert.False(t, IsPDF(nil))
}
