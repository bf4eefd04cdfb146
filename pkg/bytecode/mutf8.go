package bytecode

import "unicode/utf8"

// encodeMUTF8 converts s to the modified UTF-8 form used by CONSTANT_Utf8:
// NUL is written as two bytes and supplementary characters as surrogate pairs.
func encodeMUTF8(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}

	out := make([]byte, 0, len(s)+8)
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendThreeByte(out, r)
		default:
			r -= 0x10000
			out = appendThreeByte(out, 0xD800+(r>>10))
			out = appendThreeByte(out, 0xDC00+(r&0x3FF))
		}
	}
	return out
}

func appendThreeByte(out []byte, r rune) []byte {
	return append(out, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
}
