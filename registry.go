package isopack

import (
	"fmt"
	"sort"
	"strings"
)

// Configuration selects strategies by name. The sets below are closed: names
// are resolved once while a packager is built and never at pack time.

var interpreterRegistry = map[string]Interpreter{
	"literal":     LiteralInterpreter{},
	"ascii":       LiteralInterpreter{},
	"bcd":         BCDLeftPadded,
	"bcd-left":    BCDLeftPadded,
	"bcd-right":   BCDRightPadded,
	"bcd-left-f":  BCDLeftPadF,
	"bcd-right-f": BCDRightPadF,
	"hex":         AsciiHexInterpreter{},
	"ebcdic":      EBCDICInterpreter{},
}

var binaryInterpreterRegistry = map[string]BinaryInterpreter{
	"literal":    LiteralBinaryInterpreter{},
	"ascii":      LiteralBinaryInterpreter{},
	"hex":        AsciiHexInterpreter{},
	"ebcdic-hex": EBCDICHexInterpreter{},
}

var padderRegistry = map[string]Padder{
	"":                       NullPadder{},
	"none":                   NullPadder{},
	"left-zero":              ZeroPadder,
	"right-space":            SpacePadder,
	"right-space-truncating": RightTPadder{Char: ' '},
}

var prefixerRegistry = buildPrefixerRegistry()

// buildPrefixerRegistry names prefixers after the classic L notation: "LL" is
// two ASCII digits, "BCD-LLL" three BCD digits, "H-LL" two hex characters,
// "E-LL" two EBCDIC digits, "B" and "BB" one or two binary bytes.
func buildPrefixerRegistry() map[string]Prefixer {
	reg := map[string]Prefixer{
		"":     NullPrefixer{},
		"none": NullPrefixer{},
		"B":    BinaryPrefixer{Bytes: 1},
		"BB":   BinaryPrefixer{Bytes: 2},
	}
	for d := 1; d <= 6; d++ {
		l := strings.Repeat("L", d)
		reg[l] = AsciiPrefixer{Digits: d}
		reg["BCD-"+l] = BCDPrefixer{Digits: d}
		reg["H-"+l] = HexPrefixer{Digits: d}
		reg["E-"+l] = EBCDICPrefixer{Digits: d}
	}
	return reg
}

// LookupInterpreter returns the text interpreter registered under name.
func LookupInterpreter(name string) (Interpreter, error) {
	if name == "" {
		name = "literal"
	}
	i, ok := interpreterRegistry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown interpreter %q (known: %s)", ErrConfiguration, name, knownNames(interpreterRegistry))
	}
	return i, nil
}

// LookupBinaryInterpreter returns the byte interpreter registered under name.
func LookupBinaryInterpreter(name string) (BinaryInterpreter, error) {
	if name == "" {
		name = "literal"
	}
	i, ok := binaryInterpreterRegistry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown binary interpreter %q (known: %s)", ErrConfiguration, name, knownNames(binaryInterpreterRegistry))
	}
	return i, nil
}

// LookupPadder returns the padder registered under name.
func LookupPadder(name string) (Padder, error) {
	p, ok := padderRegistry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown padder %q (known: %s)", ErrConfiguration, name, knownNames(padderRegistry))
	}
	return p, nil
}

// LookupPrefixer returns the prefixer registered under name. Names are case
// sensitive.
func LookupPrefixer(name string) (Prefixer, error) {
	p, ok := prefixerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown prefixer %q", ErrConfiguration, name)
	}
	return p, nil
}

// legacyRegistry builds the fixed-recipe packagers by class name.
var legacyRegistry = map[string]func(fc *FieldConfig) (FieldPackager, error){
	"numeric-ascii": func(fc *FieldConfig) (FieldPackager, error) {
		return NumericASCIIPackager{Length: fc.Length, Desc: fc.Description}, nil
	},
	"varchar": func(fc *FieldConfig) (FieldPackager, error) {
		digits := fc.Digits
		if digits == 0 {
			digits = 2
		}
		if digits != 2 && digits != 3 {
			return nil, fmt.Errorf("%w: varchar prefix of %d digits, want 2 or 3", ErrConfiguration, digits)
		}
		return VarCharPackager{Digits: digits, Max: fc.Length, Desc: fc.Description}, nil
	},
	"fixed-binary": func(fc *FieldConfig) (FieldPackager, error) {
		return FixedBinaryPackager{Length: fc.Length, Desc: fc.Description}, nil
	},
	"bcd-numeric": func(fc *FieldConfig) (FieldPackager, error) {
		return BCDNumericPackager{Length: fc.Length, PadLeft: fc.PadLeft, Desc: fc.Description}, nil
	},
	"amount-bcd": func(fc *FieldConfig) (FieldPackager, error) {
		if fc.Length < 2 {
			return nil, fmt.Errorf("%w: amount length %d", ErrConfiguration, fc.Length)
		}
		return AmountBCDPackager{Length: fc.Length, Desc: fc.Description}, nil
	},
	"hex-binary": func(fc *FieldConfig) (FieldPackager, error) {
		return HexBinaryPackager{Length: fc.Length, Desc: fc.Description}, nil
	},
}

func knownNames[T any](m map[string]T) string {
	names := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
