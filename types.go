package isopack

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataType selects how a field packager treats the logical value.
type DataType int

const (
	DataTypeString DataType = iota
	DataTypeNumeric
	DataTypeBinary
	DataTypeAmount
)

var dataTypeNames = map[DataType]string{
	DataTypeString:  "string",
	DataTypeNumeric: "numeric",
	DataTypeBinary:  "binary",
	DataTypeAmount:  "amount",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("datatype(%d)", int(d))
}

func parseDataTypeString(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "string", "ans", "an", "char":
		return DataTypeString, nil
	case "numeric", "n":
		return DataTypeNumeric, nil
	case "binary", "b":
		return DataTypeBinary, nil
	case "amount", "signed-amount", "x+n":
		return DataTypeAmount, nil
	}
	return 0, fmt.Errorf("%w: unknown datatype %q", ErrConfiguration, s)
}

func (d *DataType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON(data, func(s string) (int, error) {
		t, err := parseDataTypeString(s)
		return int(t), err
	})
	*d = DataType(v)
	return err
}

func (d *DataType) UnmarshalYAML(node *yaml.Node) error {
	v, err := unmarshalEnumYAML(node, func(s string) (int, error) {
		t, err := parseDataTypeString(s)
		return int(t), err
	})
	*d = DataType(v)
	return err
}

// BitmapEncoding is the wire encoding of the presence bitmap.
type BitmapEncoding int

const (
	BitmapBinary BitmapEncoding = iota
	BitmapHex
	BitmapEBCDICHex
)

func (e BitmapEncoding) String() string {
	switch e {
	case BitmapBinary:
		return "binary"
	case BitmapHex:
		return "hex"
	case BitmapEBCDICHex:
		return "ebcdic-hex"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

func parseBitmapEncodingString(s string) (BitmapEncoding, error) {
	switch strings.ToLower(s) {
	case "binary", "b":
		return BitmapBinary, nil
	case "hex", "ascii-hex", "h":
		return BitmapHex, nil
	case "ebcdic-hex", "ebcdic", "e":
		return BitmapEBCDICHex, nil
	}
	return 0, fmt.Errorf("%w: unknown bitmap encoding %q", ErrConfiguration, s)
}

func (e *BitmapEncoding) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON(data, func(s string) (int, error) {
		t, err := parseBitmapEncodingString(s)
		return int(t), err
	})
	*e = BitmapEncoding(v)
	return err
}

func (e *BitmapEncoding) UnmarshalYAML(node *yaml.Node) error {
	v, err := unmarshalEnumYAML(node, func(s string) (int, error) {
		t, err := parseBitmapEncodingString(s)
		return int(t), err
	})
	*e = BitmapEncoding(v)
	return err
}

// BitmapConvention decides what bit 1 of the base bitmap means.
type BitmapConvention int

const (
	// BitmapExtension: bit 1 (and bit 65) announce a following extension
	// bitmap.
	BitmapExtension BitmapConvention = iota
	// BitmapFixed: the bitmap always has its configured size and bit 1 means
	// field 1 is present.
	BitmapFixed
)

func (c BitmapConvention) String() string {
	if c == BitmapFixed {
		return "fixed"
	}
	return "extension"
}

func parseBitmapConventionString(s string) (BitmapConvention, error) {
	switch strings.ToLower(s) {
	case "extension", "secondary":
		return BitmapExtension, nil
	case "fixed", "field1":
		return BitmapFixed, nil
	}
	return 0, fmt.Errorf("%w: unknown bitmap convention %q", ErrConfiguration, s)
}

func (c *BitmapConvention) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON(data, func(s string) (int, error) {
		t, err := parseBitmapConventionString(s)
		return int(t), err
	})
	*c = BitmapConvention(v)
	return err
}

func (c *BitmapConvention) UnmarshalYAML(node *yaml.Node) error {
	v, err := unmarshalEnumYAML(node, func(s string) (int, error) {
		t, err := parseBitmapConventionString(s)
		return int(t), err
	})
	*c = BitmapConvention(v)
	return err
}

// UnknownTagPolicy decides what a tag-mapped unpack does with tags it cannot
// map to a field number.
type UnknownTagPolicy int

const (
	UnknownTagStrict UnknownTagPolicy = iota
	UnknownTagDrop
	UnknownTagKeep
)

func (p UnknownTagPolicy) String() string {
	switch p {
	case UnknownTagDrop:
		return "drop"
	case UnknownTagKeep:
		return "keep"
	}
	return "strict"
}

func parseUnknownTagPolicyString(s string) (UnknownTagPolicy, error) {
	switch strings.ToLower(s) {
	case "strict", "":
		return UnknownTagStrict, nil
	case "drop", "ignore":
		return UnknownTagDrop, nil
	case "keep", "lenient":
		return UnknownTagKeep, nil
	}
	return 0, fmt.Errorf("%w: unknown tag policy %q", ErrConfiguration, s)
}

func (p *UnknownTagPolicy) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON(data, func(s string) (int, error) {
		t, err := parseUnknownTagPolicyString(s)
		return int(t), err
	})
	*p = UnknownTagPolicy(v)
	return err
}

func (p *UnknownTagPolicy) UnmarshalYAML(node *yaml.Node) error {
	v, err := unmarshalEnumYAML(node, func(s string) (int, error) {
		t, err := parseUnknownTagPolicyString(s)
		return int(t), err
	})
	*p = UnknownTagPolicy(v)
	return err
}

// unmarshalEnumJSON accepts either a number or a name.
func unmarshalEnumJSON(data []byte, parse func(string) (int, error)) (int, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, err
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case string:
		return parse(v)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: unexpected enum value %s", ErrConfiguration, string(data))
}

func unmarshalEnumYAML(node *yaml.Node, parse func(string) (int, error)) (int, error) {
	var n int
	if err := node.Decode(&n); err == nil {
		return n, nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return 0, err
	}
	return parse(s)
}

const (
	// DefaultMaxField is the highest field number of a two-bitmap message.
	DefaultMaxField = 128
	// MaxBitmapFields is the largest presence set a bitmap packager handles.
	MaxBitmapFields = 192
)
