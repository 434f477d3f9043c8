// Package synth renders text to speech through a cloned voice profile,
// chunking long input so each engine call stays within its comfortable
// span.
package synth

import (
	"strings"
	"unicode"
)

// SplitSentences breaks text at terminal punctuation followed by
// whitespace. Fragments are trimmed and empties dropped, so any input
// yields either sentences or nothing.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if isTerminal(r) {
			// Split only when whitespace (or end of input) follows, so
			// decimals like "3.14" stay intact.
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// ChunkText packs sentences greedily into chunks of at most maxChars.
// A single sentence longer than the budget becomes its own oversize
// chunk; mid-sentence cuts hurt prosody more than a long engine call.
func ChunkText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current string
	for _, sentence := range SplitSentences(text) {
		switch {
		case current == "":
			current = sentence
		case len(current)+1+len(sentence) <= maxChars:
			current += " " + sentence
		default:
			chunks = append(chunks, current)
			current = sentence
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// typographic maps common punctuation outside Latin-1 to ASCII the
// engine speaks naturally, instead of replacing it wholesale.
var typographic = map[rune]string{
	'‘': "'",   // left single quote
	'’': "'",   // right single quote / apostrophe
	'‚': "'",   // low single quote
	'“': `"`,   // left double quote
	'”': `"`,   // right double quote
	'„': `"`,   // low double quote
	'–': "-",   // en dash
	'—': "-",   // em dash
	'…': "...", // ellipsis
	'•': "-",   // bullet
}

// SanitizeText strips glyphs the engine cannot voice: emoji and symbol
// runes are dropped, typographic punctuation becomes its ASCII
// equivalent, and anything else outside Latin-1 is replaced rather than
// failing the request.
func SanitizeText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		if repl, ok := typographic[r]; ok {
			b.WriteString(repl)
			prevSpace = false
			continue
		}
		switch {
		case r == '‍' || r == '️' || r == '⃣':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case r > 0xFF:
			b.WriteByte('?')
			prevSpace = false
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
