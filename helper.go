package isopack

const hexTableUpper = "0123456789ABCDEF"

// encodeHexUpper writes src as uppercase hex into dst, which must hold
// 2*len(src) bytes.
func encodeHexUpper(dst, src []byte) {
	for i, v := range src {
		dst[i*2] = hexTableUpper[v>>4]
		dst[i*2+1] = hexTableUpper[v&0x0f]
	}
}

// hexNibble decodes one hex digit. Both cases are accepted.
func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// decodeHex decodes an even-length hex string into dst (len(src)/2 bytes).
func decodeHex(dst, src []byte) bool {
	if len(src)%2 != 0 {
		return false
	}
	for i := 0; i < len(src); i += 2 {
		hi, ok1 := hexNibble(src[i])
		lo, ok2 := hexNibble(src[i+1])
		if !ok1 || !ok2 {
			return false
		}
		dst[i/2] = hi<<4 | lo
	}
	return true
}

// pow10 returns 10^n for small non-negative n.
func pow10(n int) int {
	res := 1
	for i := 0; i < n; i++ {
		res *= 10
	}
	return res
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// checkBounds reports ErrTruncatedInput when b[offset:offset+n] is out of range.
func checkBounds(b []byte, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > len(b) {
		return truncated(offset, n, len(b))
	}
	return nil
}
