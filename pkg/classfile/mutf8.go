package classfile

import "unicode/utf8"

// decodeMUTF8 decodes modified UTF-8, joining surrogate pairs. Plain ASCII
// and valid UTF-8 without surrogates pass through unchanged.
func decodeMUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var units []rune
	for i := 0; i < len(b); {
		x := b[i]
		switch {
		case x < 0x80:
			units = append(units, rune(x))
			i++
		case x&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, rune(x&0x1F)<<6|rune(b[i+1]&0x3F))
			i += 2
		case x&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, rune(x&0x0F)<<12|rune(b[i+1]&0x3F)<<6|rune(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, utf8.RuneError)
			i++
		}
	}

	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		r := units[i]
		if r >= 0xD800 && r < 0xDC00 && i+1 < len(units) {
			if low := units[i+1]; low >= 0xDC00 && low < 0xE000 {
				r = 0x10000 + (r-0xD800)<<10 + (low - 0xDC00)
				i++
			}
		}
		out = append(out, r)
	}
	return string(out)
}
