package isopack

import (
	"errors"
	"fmt"
)

// Builder assembles a message field by field. Errors are collected and
// reported together by Build.
type Builder struct {
	msg    *Message
	errors []error
}

func NewBuilder(opts ...MessageOption) *Builder {
	return &Builder{msg: NewMessage(opts...)}
}

func (b *Builder) MTI(mti string) *Builder {
	if err := b.msg.SetMTI(mti); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

func (b *Builder) Header(h []byte) *Builder {
	b.msg.SetHeader(h)
	return b
}

func (b *Builder) Field(fieldNum int, value string) *Builder {
	if err := b.msg.SetField(fieldNum, value); err != nil {
		b.errors = append(b.errors, fmt.Errorf("field %d: %w", fieldNum, err))
	}
	return b
}

func (b *Builder) Binary(fieldNum int, value []byte) *Builder {
	if err := b.msg.SetBinary(fieldNum, value); err != nil {
		b.errors = append(b.errors, fmt.Errorf("field %d: %w", fieldNum, err))
	}
	return b
}

// Sub nests a message built by fn under fieldNum.
func (b *Builder) Sub(fieldNum int, fn func(*Builder)) *Builder {
	inner := &Builder{msg: NewSubMessage(fieldNum)}
	fn(inner)
	if len(inner.errors) > 0 {
		b.errors = append(b.errors, fmt.Errorf("field %d: %w", fieldNum, errors.Join(inner.errors...)))
		return b
	}
	if err := b.msg.Set(inner.msg); err != nil {
		b.errors = append(b.errors, fmt.Errorf("field %d: %w", fieldNum, err))
	}
	return b
}

func (b *Builder) PAN(pan string) *Builder {
	return b.Field(2, pan)
}

func (b *Builder) ProcessingCode(code string) *Builder {
	return b.Field(3, code)
}

func (b *Builder) Amount(amount string) *Builder {
	return b.Field(4, amount)
}

func (b *Builder) STAN(stan string) *Builder {
	return b.Field(11, stan)
}

func (b *Builder) Build() (*Message, error) {
	if len(b.errors) > 0 {
		return nil, errors.Join(b.errors...)
	}
	msg := b.msg
	b.msg = NewMessage()
	return msg, nil
}

func (b *Builder) MustBuild() *Message {
	msg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return msg
}
