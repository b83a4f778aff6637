package isopack

import (
	"bytes"
	"fmt"
	"strings"
)

// Padder brings a value to exactly maxLength logical units.
type Padder interface {
	Pad(data string, maxLength int) (string, error)
	PadBinary(data []byte, maxLength int) ([]byte, error)
}

// NullPadder leaves values untouched.
type NullPadder struct{}

func (NullPadder) Pad(data string, maxLength int) (string, error) {
	if len(data) > maxLength {
		return "", exceeded(len(data), maxLength)
	}
	return data, nil
}

func (NullPadder) PadBinary(data []byte, maxLength int) ([]byte, error) {
	if len(data) > maxLength {
		return nil, exceeded(len(data), maxLength)
	}
	return data, nil
}

// LeftPadder fills on the left with Char, typically '0' for numerics.
type LeftPadder struct {
	Char byte
}

// ZeroPadder is the left-zero padder for numeric fields.
var ZeroPadder = LeftPadder{Char: '0'}

func (p LeftPadder) Pad(data string, maxLength int) (string, error) {
	if len(data) > maxLength {
		return "", exceeded(len(data), maxLength)
	}
	return strings.Repeat(string(p.Char), maxLength-len(data)) + data, nil
}

func (p LeftPadder) PadBinary(data []byte, maxLength int) ([]byte, error) {
	if len(data) > maxLength {
		return nil, exceeded(len(data), maxLength)
	}
	out := bytes.Repeat([]byte{0}, maxLength-len(data))
	return append(out, data...), nil
}

// RightPadder fills on the right with Char, typically ' ' for alphanumerics.
type RightPadder struct {
	Char byte
}

// SpacePadder is the right-space padder for character fields.
var SpacePadder = RightPadder{Char: ' '}

func (p RightPadder) Pad(data string, maxLength int) (string, error) {
	if len(data) > maxLength {
		return "", exceeded(len(data), maxLength)
	}
	return data + strings.Repeat(string(p.Char), maxLength-len(data)), nil
}

func (p RightPadder) PadBinary(data []byte, maxLength int) ([]byte, error) {
	if len(data) > maxLength {
		return nil, exceeded(len(data), maxLength)
	}
	out := make([]byte, maxLength)
	copy(out, data)
	return out, nil
}

// RightTPadder is a RightPadder that truncates oversized values instead of
// failing. Only formats that define truncation should use it.
type RightTPadder struct {
	Char byte
}

func (p RightTPadder) Pad(data string, maxLength int) (string, error) {
	if len(data) > maxLength {
		return data[:maxLength], nil
	}
	return RightPadder(p).Pad(data, maxLength)
}

func (p RightTPadder) PadBinary(data []byte, maxLength int) ([]byte, error) {
	if len(data) > maxLength {
		return cloneBytes(data[:maxLength]), nil
	}
	return RightPadder(p).PadBinary(data, maxLength)
}

func exceeded(n, max int) error {
	return fmt.Errorf("%w: length %d, max %d", ErrLengthExceeded, n, max)
}
