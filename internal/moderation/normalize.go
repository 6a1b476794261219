package moderation

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// invisibleRunes are format characters that render as nothing and are used
// to split a word without changing how it looks.
var invisibleRunes = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00AD, Hi: 0x00AD, Stride: 1}, // soft hyphen
		{Lo: 0x034F, Hi: 0x034F, Stride: 1}, // combining grapheme joiner
		{Lo: 0x200B, Hi: 0x200F, Stride: 1}, // zero-width space .. RTL mark
		{Lo: 0x202A, Hi: 0x202E, Stride: 1}, // bidi embeddings
		{Lo: 0x2060, Hi: 0x2064, Stride: 1}, // word joiner .. invisible plus
		{Lo: 0x2066, Hi: 0x2069, Stride: 1}, // bidi isolates
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
		{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1}, // BOM
	},
	R32: []unicode.Range32{
		{Lo: 0xE0000, Hi: 0xE007F, Stride: 1}, // tags
	},
}

// Normalize applies Unicode canonical composition (NFC) to text. Invalid
// UTF-8 passes through unchanged. Normalize is idempotent.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// StripInvisible removes zero-width, bidi control and other invisible format
// characters from text.
func StripInvisible(text string) string {
	out, _, err := transform.String(runes.Remove(runes.In(invisibleRunes)), text)
	if err != nil {
		return text
	}
	return out
}
