package isopack

import "log/slog"

// MessageOption represents a functional option for message construction.
type MessageOption func(*Message)

// WithHeader sets the raw header of a message.
func WithHeader(header []byte) MessageOption {
	return func(m *Message) {
		m.header = cloneBytes(header)
	}
}

// WithMTI sets field 0. Invalid MTIs are ignored; use SetMTI to see the error.
func WithMTI(mti string) MessageOption {
	return func(m *Message) {
		_ = m.SetMTI(mti)
	}
}

// WithField sets a text field during message creation.
func WithField(fieldNum int, value string) MessageOption {
	return func(m *Message) {
		_ = m.SetField(fieldNum, value)
	}
}

// WithFields sets multiple text fields during message creation.
func WithFields(fields map[int]string) MessageOption {
	return func(m *Message) {
		for n, v := range fields {
			_ = m.SetField(n, v)
		}
	}
}

// WithDirection tags the message as incoming or outgoing.
func WithDirection(d Direction) MessageOption {
	return func(m *Message) {
		m.direction = d
	}
}

// PackagerOption represents a functional option for MessagePackager
// configuration.
type PackagerOption func(*MessagePackager)

// WithFirstField sets the first field number packed after the bitmap.
// Defaults to 2 when field 1 holds the bitmap and 1 otherwise.
func WithFirstField(n int) PackagerOption {
	return func(p *MessagePackager) {
		p.firstField = n
		p.firstFieldSet = true
	}
}

// WithoutBitmap configures a positional, bitmap-less format.
func WithoutBitmap() PackagerOption {
	return func(p *MessagePackager) {
		p.emitBitmap = false
	}
}

// WithBitmapField sets the table index holding the bitmap packager. Use
// BitmapKey for formats where field 1 is a data field.
func WithBitmapField(n int) PackagerOption {
	return func(p *MessagePackager) {
		p.bitmapField = n
	}
}

// WithMaxField sets the highest valid field number.
func WithMaxField(n int) PackagerOption {
	return func(p *MessagePackager) {
		p.maxField = n
	}
}

// WithHeaderLength makes the packager carry n header bytes before the MTI.
func WithHeaderLength(n int) PackagerOption {
	return func(p *MessagePackager) {
		p.headerLength = n
	}
}

// WithValidator runs v before pack and after unpack.
func WithValidator(v *MessageValidator) PackagerOption {
	return func(p *MessagePackager) {
		p.validator = v
	}
}

// WithBestEffortPack makes Pack log and skip fields that fail to pack
// instead of aborting. Unpack is always strict.
func WithBestEffortPack() PackagerOption {
	return func(p *MessagePackager) {
		p.bestEffort = true
	}
}

// WithLogger sets the logger for trace output. A nil logger discards.
func WithLogger(l *slog.Logger) PackagerOption {
	return func(p *MessagePackager) {
		p.logger = loggerOrDiscard(l)
	}
}

// WithDescription names the packager in errors and logs.
func WithDescription(desc string) PackagerOption {
	return func(p *MessagePackager) {
		p.description = desc
	}
}
