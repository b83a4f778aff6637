package isopack

import "fmt"

type iso87Kind int

const (
	iso87N      iso87Kind = iota // fixed numeric
	iso87AN                      // fixed character
	iso87LLN                     // LLVAR numeric
	iso87LL                      // LLVAR character
	iso87LLL                     // LLLVAR character
	iso87B                       // fixed binary
	iso87LLLB                    // LLLVAR binary
	iso87XN                      // sign and digits
)

type iso87Field struct {
	kind   iso87Kind
	length int
	desc   string
}

// iso87Fields is the ISO 8583:1987 data element table. Field 1 is the
// bitmap and is supplied by the packager constructors.
var iso87Fields = map[int]iso87Field{
	2:   {iso87LLN, 19, "Primary Account Number"},
	3:   {iso87N, 6, "Processing Code"},
	4:   {iso87N, 12, "Amount, Transaction"},
	5:   {iso87N, 12, "Amount, Settlement"},
	6:   {iso87N, 12, "Amount, Cardholder Billing"},
	7:   {iso87N, 10, "Transmission Date and Time"},
	8:   {iso87N, 8, "Amount, Cardholder Billing Fee"},
	9:   {iso87N, 8, "Conversion Rate, Settlement"},
	10:  {iso87N, 8, "Conversion Rate, Cardholder Billing"},
	11:  {iso87N, 6, "System Trace Audit Number"},
	12:  {iso87N, 6, "Time, Local Transaction"},
	13:  {iso87N, 4, "Date, Local Transaction"},
	14:  {iso87N, 4, "Date, Expiration"},
	15:  {iso87N, 4, "Date, Settlement"},
	16:  {iso87N, 4, "Date, Conversion"},
	17:  {iso87N, 4, "Date, Capture"},
	18:  {iso87N, 4, "Merchant Type"},
	19:  {iso87N, 3, "Acquiring Institution Country Code"},
	20:  {iso87N, 3, "PAN Extended, Country Code"},
	21:  {iso87N, 3, "Forwarding Institution Country Code"},
	22:  {iso87N, 3, "Point of Service Entry Mode"},
	23:  {iso87N, 3, "Card Sequence Number"},
	24:  {iso87N, 3, "Network International Identifier"},
	25:  {iso87N, 2, "Point of Service Condition Code"},
	26:  {iso87N, 2, "Point of Service PIN Capture Code"},
	27:  {iso87N, 1, "Authorization Identification Response Length"},
	28:  {iso87XN, 9, "Amount, Transaction Fee"},
	29:  {iso87XN, 9, "Amount, Settlement Fee"},
	30:  {iso87XN, 9, "Amount, Transaction Processing Fee"},
	31:  {iso87XN, 9, "Amount, Settlement Processing Fee"},
	32:  {iso87LLN, 11, "Acquiring Institution Identification Code"},
	33:  {iso87LLN, 11, "Forwarding Institution Identification Code"},
	34:  {iso87LL, 28, "Primary Account Number, Extended"},
	35:  {iso87LL, 37, "Track 2 Data"},
	36:  {iso87LLL, 104, "Track 3 Data"},
	37:  {iso87AN, 12, "Retrieval Reference Number"},
	38:  {iso87AN, 6, "Authorization Identification Response"},
	39:  {iso87AN, 2, "Response Code"},
	40:  {iso87AN, 3, "Service Restriction Code"},
	41:  {iso87AN, 8, "Card Acceptor Terminal Identification"},
	42:  {iso87AN, 15, "Card Acceptor Identification Code"},
	43:  {iso87AN, 40, "Card Acceptor Name/Location"},
	44:  {iso87LL, 25, "Additional Response Data"},
	45:  {iso87LL, 76, "Track 1 Data"},
	46:  {iso87LLL, 999, "Additional Data - ISO"},
	47:  {iso87LLL, 999, "Additional Data - National"},
	48:  {iso87LLL, 999, "Additional Data - Private"},
	49:  {iso87AN, 3, "Currency Code, Transaction"},
	50:  {iso87AN, 3, "Currency Code, Settlement"},
	51:  {iso87AN, 3, "Currency Code, Cardholder Billing"},
	52:  {iso87B, 8, "PIN Data"},
	53:  {iso87N, 16, "Security Related Control Information"},
	54:  {iso87LLL, 120, "Additional Amounts"},
	55:  {iso87LLLB, 999, "ICC Data"},
	56:  {iso87LLL, 999, "Reserved ISO"},
	57:  {iso87LLL, 999, "Reserved National"},
	58:  {iso87LLL, 999, "Reserved National"},
	59:  {iso87LLL, 999, "Reserved National"},
	60:  {iso87LLL, 999, "Reserved National"},
	61:  {iso87LLL, 999, "Reserved Private"},
	62:  {iso87LLL, 999, "Reserved Private"},
	63:  {iso87LLL, 999, "Reserved Private"},
	64:  {iso87B, 8, "Message Authentication Code"},
	65:  {iso87B, 1, "Bitmap, Tertiary"},
	66:  {iso87N, 1, "Settlement Code"},
	67:  {iso87N, 2, "Extended Payment Code"},
	68:  {iso87N, 3, "Receiving Institution Country Code"},
	69:  {iso87N, 3, "Settlement Institution Country Code"},
	70:  {iso87N, 3, "Network Management Information Code"},
	71:  {iso87N, 4, "Message Number"},
	72:  {iso87N, 4, "Message Number, Last"},
	73:  {iso87N, 6, "Date, Action"},
	74:  {iso87N, 10, "Credits, Number"},
	75:  {iso87N, 10, "Credits, Reversal Number"},
	76:  {iso87N, 10, "Debits, Number"},
	77:  {iso87N, 10, "Debits, Reversal Number"},
	78:  {iso87N, 10, "Transfer, Number"},
	79:  {iso87N, 10, "Transfer, Reversal Number"},
	80:  {iso87N, 10, "Inquiries, Number"},
	81:  {iso87N, 10, "Authorizations, Number"},
	82:  {iso87N, 12, "Credits, Processing Fee Amount"},
	83:  {iso87N, 12, "Credits, Transaction Fee Amount"},
	84:  {iso87N, 12, "Debits, Processing Fee Amount"},
	85:  {iso87N, 12, "Debits, Transaction Fee Amount"},
	86:  {iso87N, 16, "Credits, Amount"},
	87:  {iso87N, 16, "Credits, Reversal Amount"},
	88:  {iso87N, 16, "Debits, Amount"},
	89:  {iso87N, 16, "Debits, Reversal Amount"},
	90:  {iso87N, 42, "Original Data Elements"},
	91:  {iso87AN, 1, "File Update Code"},
	92:  {iso87AN, 2, "File Security Code"},
	93:  {iso87AN, 5, "Response Indicator"},
	94:  {iso87AN, 7, "Service Indicator"},
	95:  {iso87AN, 42, "Replacement Amounts"},
	96:  {iso87B, 8, "Message Security Code"},
	97:  {iso87XN, 17, "Amount, Net Settlement"},
	98:  {iso87AN, 25, "Payee"},
	99:  {iso87LLN, 11, "Settlement Institution Identification Code"},
	100: {iso87LLN, 11, "Receiving Institution Identification Code"},
	101: {iso87LL, 17, "File Name"},
	102: {iso87LL, 28, "Account Identification 1"},
	103: {iso87LL, 28, "Account Identification 2"},
	104: {iso87LLL, 100, "Transaction Description"},
	128: {iso87B, 8, "Message Authentication Code"},
}

func init() {
	for n := 105; n <= 127; n++ {
		desc := "Reserved ISO"
		switch {
		case n >= 120:
			desc = "Reserved Private"
		case n >= 112:
			desc = "Reserved National"
		}
		iso87Fields[n] = iso87Field{iso87LLL, 999, desc}
	}
}

// NewISO87APackager returns the ASCII variant: numeric fields as digits,
// binary fields as hex text, a hex bitmap and ASCII length prefixes.
func NewISO87APackager(opts ...PackagerOption) (*MessagePackager, error) {
	return newISO87Packager(iso87ASCIIField, NumericASCIIPackager{Length: 4, Desc: "Message Type Indicator"}, BitmapHex, opts)
}

// NewISO87BPackager returns the binary variant: numeric fields in BCD,
// raw binary fields, a binary bitmap and BCD length prefixes.
func NewISO87BPackager(opts ...PackagerOption) (*MessagePackager, error) {
	return newISO87Packager(iso87BCDField, BCDNumericPackager{Length: 4, PadLeft: true, Desc: "Message Type Indicator"}, BitmapBinary, opts)
}

func newISO87Packager(build func(iso87Field) (FieldPackager, error), mti FieldPackager, enc BitmapEncoding, opts []PackagerOption) (*MessagePackager, error) {
	bitmap, err := NewBitmapPackager(enc, 128, BitmapExtension)
	if err != nil {
		return nil, err
	}
	fields := map[int]FieldPackager{0: mti, 1: bitmap}
	for n, f := range iso87Fields {
		fp, err := build(f)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", n, err)
		}
		fields[n] = fp
	}
	return NewMessagePackager(fields, append([]PackagerOption{WithDescription("iso87")}, opts...)...)
}

func iso87ASCIIField(f iso87Field) (FieldPackager, error) {
	switch f.kind {
	case iso87N:
		return NewFieldPackager(f.length, DataTypeNumeric, LiteralInterpreter{}, ZeroPadder, nil, f.desc)
	case iso87AN:
		return NewFieldPackager(f.length, DataTypeString, LiteralInterpreter{}, SpacePadder, nil, f.desc)
	case iso87LLN:
		return NewFieldPackager(f.length, DataTypeNumeric, LiteralInterpreter{}, nil, PrefixLL, f.desc)
	case iso87LL:
		return VarCharPackager{Digits: 2, Max: f.length, Desc: f.desc}, nil
	case iso87LLL:
		return VarCharPackager{Digits: 3, Max: f.length, Desc: f.desc}, nil
	case iso87B:
		return HexBinaryPackager{Length: f.length, Desc: f.desc}, nil
	case iso87LLLB:
		return NewBinaryFieldPackager(f.length, AsciiHexInterpreter{}, nil, PrefixLLL, f.desc)
	case iso87XN:
		return NewFieldPackager(f.length, DataTypeAmount, LiteralInterpreter{}, ZeroPadder, nil, f.desc)
	}
	return nil, fmt.Errorf("%w: unknown field kind %d", ErrConfiguration, f.kind)
}

func iso87BCDField(f iso87Field) (FieldPackager, error) {
	switch f.kind {
	case iso87N:
		return BCDNumericPackager{Length: f.length, PadLeft: true, Desc: f.desc}, nil
	case iso87AN:
		return NewFieldPackager(f.length, DataTypeString, LiteralInterpreter{}, SpacePadder, nil, f.desc)
	case iso87LLN:
		return NewFieldPackager(f.length, DataTypeNumeric, BCDRightPadded, nil, BCDPrefixer{Digits: 2}, f.desc)
	case iso87LL:
		return NewFieldPackager(f.length, DataTypeString, LiteralInterpreter{}, nil, BCDPrefixer{Digits: 2}, f.desc)
	case iso87LLL:
		return NewFieldPackager(f.length, DataTypeString, LiteralInterpreter{}, nil, BCDPrefixer{Digits: 3}, f.desc)
	case iso87B:
		return FixedBinaryPackager{Length: f.length, Desc: f.desc}, nil
	case iso87LLLB:
		return NewBinaryFieldPackager(f.length, LiteralBinaryInterpreter{}, nil, BCDPrefixer{Digits: 3}, f.desc)
	case iso87XN:
		return AmountBCDPackager{Length: f.length, Desc: f.desc}, nil
	}
	return nil, fmt.Errorf("%w: unknown field kind %d", ErrConfiguration, f.kind)
}

// NewISO87Validator checks the numeric and date fields of the table. Field
// 7 must be MMDDhhmmss, 12 HHMMSS, 13 MMDD, 14 YYMM and 73 YYMMDD.
func NewISO87Validator(breakOnError bool) *MessageValidator {
	dates := map[int]string{
		7:  FormatMMDDhhmmss,
		12: FormatHHMMSS,
		13: FormatMMDD,
		14: FormatYYMM,
		73: FormatYYMMDD,
	}
	fields := make(map[int]ComponentValidator)
	for n, f := range iso87Fields {
		if f.kind != iso87N && f.kind != iso87LLN {
			continue
		}
		rules := []ValidationRule{&NumericRule{}}
		if format, ok := dates[n]; ok {
			rules = append(rules, &FormatRule{Format: format})
		}
		fields[n] = NewFieldValidator(breakOnError, rules...)
	}
	return NewMessageValidator(fields, nil, breakOnError)
}
