package isopack

import "fmt"

// CompositePackager packs a nested message. The inner codec turns the
// sub-message into bytes, which the outer packager then treats as an
// ordinary binary value, so the outer length rules apply to the whole blob.
type CompositePackager struct {
	outer FieldPackager
	inner MessageCodec
}

// NewCompositePackager wraps inner with the length and encoding rules of
// outer.
func NewCompositePackager(outer FieldPackager, inner MessageCodec) (*CompositePackager, error) {
	if outer == nil || inner == nil {
		return nil, fmt.Errorf("%w: composite packager needs an outer packager and an inner codec", ErrConfiguration)
	}
	return &CompositePackager{outer: outer, inner: inner}, nil
}

func (p *CompositePackager) MaxLength() int       { return p.outer.MaxLength() }
func (p *CompositePackager) MaxPackedLength() int { return p.outer.MaxPackedLength() }
func (p *CompositePackager) Inner() MessageCodec  { return p.inner }

func (p *CompositePackager) Description() string {
	if d, ok := p.inner.(interface{ Description() string }); ok {
		return p.outer.Description() + " of " + d.Description()
	}
	return p.outer.Description() + " composite"
}

func (p *CompositePackager) Pack(c Component) ([]byte, error) {
	sub, ok := unwrapComponent(c).(*Message)
	if !ok {
		return nil, fieldErr(keyOf(c), p, fmt.Errorf("%w: composite field needs a message, got %T", ErrEncoding, c))
	}
	raw, err := p.inner.Pack(sub)
	if err != nil {
		return nil, fieldErr(sub.Key(), p, err)
	}
	return p.outer.Pack(NewBinaryField(sub.Key(), raw))
}

func (p *CompositePackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	c, n, err := p.outer.Unpack(fieldNumber, b, offset)
	if err != nil {
		return nil, 0, err
	}
	raw, err := componentBytes(c)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	sub, _, err := p.inner.Unpack(raw)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	sub.SetKey(fieldNumber)
	return sub, n, nil
}
