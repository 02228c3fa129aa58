package reconcile

// Networked backends count offsets in UTF-16 code units; the engine counts
// runes. These helpers convert between the two within one string.

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	count := 0
	for _, r := range s {
		if r >= 0x10000 {
			count += 2
		} else {
			count++
		}
	}
	return count
}

// RuneToUTF16Offset converts a rune offset within s to UTF-16 code units.
func RuneToUTF16Offset(s string, runeOff int) int {
	if runeOff <= 0 {
		return 0
	}

	runeCount := 0
	utf16Off := 0
	for _, r := range s {
		if runeCount >= runeOff {
			break
		}
		if r >= 0x10000 {
			utf16Off += 2
		} else {
			utf16Off++
		}
		runeCount++
	}
	return utf16Off
}

// UTF16ToRuneOffset converts a UTF-16 offset within s to a rune offset.
// An offset that falls inside a surrogate pair rounds up to the next rune.
func UTF16ToRuneOffset(s string, utf16Off int) int {
	if utf16Off <= 0 {
		return 0
	}

	utf16Count := 0
	runeOff := 0
	for _, r := range s {
		if utf16Count >= utf16Off {
			break
		}
		if r >= 0x10000 {
			utf16Count += 2
		} else {
			utf16Count++
		}
		runeOff++
	}
	return runeOff
}

// UTF16SpanToRunes converts an (offset, length) pair in UTF-16 code units to
// runes.
func UTF16SpanToRunes(s string, offset, length int) (int, int) {
	start := UTF16ToRuneOffset(s, offset)
	end := UTF16ToRuneOffset(s, offset+length)
	return start, end - start
}
