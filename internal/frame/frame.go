// Package frame reads and writes the length indicator that precedes a
// message on a stream.
package frame

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind selects the length indicator encoding.
type Kind int

const (
	None    Kind = iota
	Binary2      // 2-byte big-endian length
	Binary4      // 4-byte big-endian length
	ASCII4       // 4-digit decimal length, e.g. "0048"
	Hex4         // 4-char upper-case hex length, e.g. "0030"
)

var (
	ErrInvalidLength = errors.New("invalid length indicator")
	ErrTooLarge      = errors.New("message too large for length indicator")
)

var kindNames = map[string]Kind{
	"none":   None,
	"bin2":   Binary2,
	"bin4":   Binary4,
	"ascii4": ASCII4,
	"hex4":   Hex4,
}

// ParseKind maps a name such as "bin2" to its Kind.
func ParseKind(name string) (Kind, error) {
	k, ok := kindNames[strings.ToLower(name)]
	if !ok {
		return None, fmt.Errorf("unknown frame kind %q", name)
	}
	return k, nil
}

func (k Kind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Size is the number of indicator bytes.
func (k Kind) Size() int {
	switch k {
	case Binary2:
		return 2
	case Binary4, ASCII4, Hex4:
		return 4
	}
	return 0
}

func (k Kind) max() int {
	switch k {
	case Binary2, Hex4:
		return 0xFFFF
	case Binary4:
		return 0x7FFFFFFF
	case ASCII4:
		return 9999
	}
	return -1
}

const hexChars = "0123456789ABCDEF"

// encode writes n into buf, which must hold k.Size() bytes.
func (k Kind) encode(n int, buf []byte) error {
	if max := k.max(); max >= 0 && n > max {
		return fmt.Errorf("%w: %d bytes, %s holds at most %d", ErrTooLarge, n, k, max)
	}
	switch k {
	case Binary2:
		buf[0] = byte(n >> 8)
		buf[1] = byte(n)
	case Binary4:
		buf[0] = byte(n >> 24)
		buf[1] = byte(n >> 16)
		buf[2] = byte(n >> 8)
		buf[3] = byte(n)
	case ASCII4:
		for i := 3; i >= 0; i-- {
			buf[i] = byte('0' + n%10)
			n /= 10
		}
	case Hex4:
		for i := 3; i >= 0; i-- {
			buf[i] = hexChars[n&0xF]
			n >>= 4
		}
	}
	return nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	}
	return 0, false
}

// decode reads the length from the first k.Size() bytes of buf.
func (k Kind) decode(buf []byte) (int, error) {
	if len(buf) < k.Size() {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", io.ErrUnexpectedEOF, k.Size(), len(buf))
	}
	switch k {
	case Binary2:
		return int(buf[0])<<8 | int(buf[1]), nil
	case Binary4:
		if buf[0]&0x80 != 0 {
			return 0, fmt.Errorf("%w: % X has the sign bit set", ErrInvalidLength, buf[:4])
		}
		return int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3]), nil
	case ASCII4:
		n := 0
		for _, c := range buf[:4] {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("%w: %q", ErrInvalidLength, buf[:4])
			}
			n = n*10 + int(c-'0')
		}
		return n, nil
	case Hex4:
		n := 0
		for _, c := range buf[:4] {
			v, ok := hexVal(c)
			if !ok {
				return 0, fmt.Errorf("%w: %q", ErrInvalidLength, buf[:4])
			}
			n = n<<4 | v
		}
		return n, nil
	}
	return 0, nil
}

// Append appends the framed msg to dst.
func Append(dst []byte, k Kind, msg []byte) ([]byte, error) {
	var ind [4]byte
	if err := k.encode(len(msg), ind[:k.Size()]); err != nil {
		return dst, err
	}
	dst = append(dst, ind[:k.Size()]...)
	return append(dst, msg...), nil
}

// Write writes the indicator and msg to w.
func Write(w io.Writer, k Kind, msg []byte) error {
	b, err := Append(make([]byte, 0, k.Size()+len(msg)), k, msg)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Read reads one framed message from r. With None the rest of r is the
// message. io.EOF is returned only when r ends before any indicator byte.
func Read(r io.Reader, k Kind) ([]byte, error) {
	if k == None {
		return io.ReadAll(r)
	}
	var ind [4]byte
	if _, err := io.ReadFull(r, ind[:k.Size()]); err != nil {
		return nil, err
	}
	n, err := k.decode(ind[:k.Size()])
	if err != nil {
		return nil, err
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

// Split cuts a buffer of back-to-back framed messages. The returned slices
// alias data. With None, data is a single message.
func Split(data []byte, k Kind) ([][]byte, error) {
	if k == None {
		if len(data) == 0 {
			return nil, nil
		}
		return [][]byte{data}, nil
	}
	var msgs [][]byte
	for offset := 0; offset < len(data); {
		n, err := k.decode(data[offset:])
		if err != nil {
			return msgs, fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		start := offset + k.Size()
		if start+n > len(data) {
			return msgs, fmt.Errorf("frame at offset %d: %w: need %d bytes, have %d", offset, io.ErrUnexpectedEOF, n, len(data)-start)
		}
		msgs = append(msgs, data[start:start+n])
		offset = start + n
	}
	return msgs, nil
}
