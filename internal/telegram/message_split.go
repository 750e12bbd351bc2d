package telegram

import "strings"

// Telegram rejects sendMessage texts longer than this many characters.
const maxMessageLength = 4096

// Preferred break points, best first. A ticket question with several addenda breaks
// between addenda before it breaks inside one.
var splitSeparators = []string{"\n\n", "\n", " "}

// splitMessage breaks text into pieces of at most limit runes. Each piece ends just after
// the best separator inside the window, or is cut hard at the rune limit.
func splitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageLength
	}
	var parts []string
	for {
		end, fits := runePrefix(text, limit)
		if fits {
			return append(parts, text)
		}
		cut := end
		for _, sep := range splitSeparators {
			if i := strings.LastIndex(text[:end], sep); i > 0 {
				cut = i + len(sep)
				break
			}
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
}

// runePrefix returns the byte length of the first limit runes of s, and whether that
// covers all of s.
func runePrefix(s string, limit int) (int, bool) {
	n := 0
	for i := range s {
		if n == limit {
			return i, false
		}
		n++
	}
	return len(s), true
}
