package render

import "golang.org/x/text/width"

// WrapCJK wraps text at the given column limit, counting East
// Asian wide and fullwidth runes as two columns. Breaking is per rune, not
// per word, matching how Japanese prose is set. Input newlines are kept as
// paragraph breaks; empty text renders as a single "-" placeholder.
func WrapCJK(text string, columns int) []string {
	if columns <= 0 {
		columns = wrapColumns
	}
	if text == "" {
		return []string{"-"}
	}

	var lines []string
	for _, paragraph := range splitLines(text) {
		if paragraph == "" {
			lines = append(lines, "")
			continue
		}
		var buf []rune
		used := 0
		for _, r := range paragraph {
			w := runeColumns(r)
			if used+w > columns && len(buf) > 0 {
				lines = append(lines, string(buf))
				buf = buf[:0]
				used = 0
			}
			buf = append(buf, r)
			used += w
		}
		if len(buf) > 0 {
			lines = append(lines, string(buf))
		}
	}
	return lines
}

func runeColumns(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			line := text[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
