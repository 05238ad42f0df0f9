package provider

import (
	"math"

	"github.com/catalogai/doc-analyzer/internal/pdftext"
)

// TruncationMarker is appended whenever SanitizeText drops the tail of an
// over-long input, so the model (and the logs) can tell the text is partial.
const TruncationMarker = "\n[truncated]"

// SanitizeText prepares arbitrary extracted text for transmission: it is
// normalized to valid UTF-8 and clipped to max bytes on a rune boundary with
// an explicit marker, never silently. max <= 0 means no limit.
func SanitizeText(s string, max int) string {
	s = pdftext.Normalize(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// CalculateCost prices a usage record: rate per 1000 tokens on each side,
// summed and rounded to 6 decimals.
func CalculateCost(u Usage, p Pricing) float64 {
	cost := float64(u.PromptTokens)/1000*p.InputRate +
		float64(u.CompletionTokens)/1000*p.OutputRate
	return math.Round(cost*1e6) / 1e6
}
