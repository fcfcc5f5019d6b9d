package command

import "unicode/utf8"

// decoder turns raw stream chunks into text. A rune split across two
// chunks is carried over instead of invalidating both.
type decoder struct {
	carry []byte
}

// decode returns the text of chunk and false if it is not valid UTF-8.
func (d *decoder) decode(chunk []byte) (string, bool) {
	buf := chunk
	if len(d.carry) > 0 {
		buf = append(d.carry, chunk...)
		d.carry = nil
	}

	if n := incompleteTail(buf); n > 0 {
		d.carry = append([]byte(nil), buf[len(buf)-n:]...)
		buf = buf[:len(buf)-n]
	}

	if !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}

// incompleteTail returns the length of a truncated multi-byte rune at the
// end of b, or 0.
func incompleteTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return 0
		}
		return i
	}
	return 0
}
