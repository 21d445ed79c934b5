package telegram

import "strings"

// maxMessageLen is Telegram's hard limit for a single text message.
const maxMessageLen = 4096

// splitMessage breaks text into chunks that fit Telegram's message size
// limit, preferring to split on line boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLen {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		// A single oversized line gets hard-split.
		for len(line) > maxMessageLen {
			if b.Len() > 0 {
				chunks = append(chunks, b.String())
				b.Reset()
			}
			chunks = append(chunks, line[:maxMessageLen])
			line = line[maxMessageLen:]
		}
		if b.Len()+len(line)+1 > maxMessageLen {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
