package isopack

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Packager kinds accepted by PackagerConfig.Kind.
const (
	KindMessage = "message"
	KindTagged  = "tagged"
	KindBERTLV  = "ber-tlv"
)

// PackagerConfig describes a message format. Nested formats appear as the
// Sub of a FieldConfig.
type PackagerConfig struct {
	Name         string              `json:"name,omitempty" yaml:"name,omitempty"`
	Kind         string              `json:"kind,omitempty" yaml:"kind,omitempty"`
	HeaderLength int                 `json:"header_length,omitempty" yaml:"header_length,omitempty"`
	FirstField   int                 `json:"first_field,omitempty" yaml:"first_field,omitempty"`
	MaxField     int                 `json:"max_field,omitempty" yaml:"max_field,omitempty"`
	BitmapField  int                 `json:"bitmap_field,omitempty" yaml:"bitmap_field,omitempty"`
	Bitmap       *BitmapConfig       `json:"bitmap,omitempty" yaml:"bitmap,omitempty"`
	BestEffort   bool                `json:"best_effort,omitempty" yaml:"best_effort,omitempty"`
	Tagged       *TaggedConfig       `json:"tagged,omitempty" yaml:"tagged,omitempty"`
	MaxDepth     int                 `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	Fields       map[int]FieldConfig `json:"fields,omitempty" yaml:"fields,omitempty"`
	Validator    *ValidatorConfig    `json:"validator,omitempty" yaml:"validator,omitempty"`
}

// BitmapConfig describes the presence bitmap. BitmapField in the enclosing
// PackagerConfig says which table index it occupies (default 1).
type BitmapConfig struct {
	Encoding   BitmapEncoding   `json:"encoding" yaml:"encoding"`
	MaxBits    int              `json:"max_bits,omitempty" yaml:"max_bits,omitempty"`
	Convention BitmapConvention `json:"convention,omitempty" yaml:"convention,omitempty"`
}

// FieldConfig describes one field. Class selects a fixed recipe from
// legacy.go; otherwise the field is composed from DataType, Interpreter,
// Padder and Prefixer. Sub makes the field a nested message.
type FieldConfig struct {
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Class       string          `json:"class,omitempty" yaml:"class,omitempty"`
	Length      int             `json:"length" yaml:"length"`
	DataType    DataType        `json:"type,omitempty" yaml:"type,omitempty"`
	Interpreter string          `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	Padder      string          `json:"padder,omitempty" yaml:"padder,omitempty"`
	Prefixer    string          `json:"prefixer,omitempty" yaml:"prefixer,omitempty"`
	Digits      int             `json:"digits,omitempty" yaml:"digits,omitempty"`
	PadLeft     bool            `json:"pad_left,omitempty" yaml:"pad_left,omitempty"`
	Sub         *PackagerConfig `json:"sub,omitempty" yaml:"sub,omitempty"`
}

// TaggedConfig configures a tag-mapped packager. Fields of the enclosing
// PackagerConfig become per-tag packagers.
type TaggedConfig struct {
	TagSize     int              `json:"tag_size" yaml:"tag_size"`
	LenSize     int              `json:"len_size" yaml:"len_size"`
	Swap        bool             `json:"swap,omitempty" yaml:"swap,omitempty"`
	LengthBase  int              `json:"length_base,omitempty" yaml:"length_base,omitempty"`
	Tags        map[int]string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	UnknownTags UnknownTagPolicy `json:"unknown_tags,omitempty" yaml:"unknown_tags,omitempty"`
	Binary      bool             `json:"binary,omitempty" yaml:"binary,omitempty"`
}

// ValidatorConfig attaches a MessageValidator to a message packager.
type ValidatorConfig struct {
	BreakOnError bool                     `json:"break_on_error,omitempty" yaml:"break_on_error,omitempty"`
	Mandatory    []int                    `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
	Fields       map[int]FieldRulesConfig `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// FieldRulesConfig lists the rules for one field, applied in the order of
// the struct fields.
type FieldRulesConfig struct {
	BreakOnError bool         `json:"break_on_error,omitempty" yaml:"break_on_error,omitempty"`
	MinLength    int          `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength    int          `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	ExactLength  int          `json:"exact_length,omitempty" yaml:"exact_length,omitempty"`
	NotBlank     bool         `json:"not_blank,omitempty" yaml:"not_blank,omitempty"`
	NotZero      bool         `json:"not_zero,omitempty" yaml:"not_zero,omitempty"`
	Numeric      bool         `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	Alphanumeric bool         `json:"alphanumeric,omitempty" yaml:"alphanumeric,omitempty"`
	Regex        string       `json:"regex,omitempty" yaml:"regex,omitempty"`
	Format       string       `json:"format,omitempty" yaml:"format,omitempty"`
	Range        *RangeConfig `json:"range,omitempty" yaml:"range,omitempty"`
}

type RangeConfig struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// LoadPackagerFromJSON parses a JSON packager description and builds it.
func LoadPackagerFromJSON(data []byte, opts ...BuildOption) (MessageCodec, error) {
	var config PackagerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse packager config: %w", err)
	}
	return BuildPackager(&config, opts...)
}

// LoadPackagerFromYAML parses a YAML packager description and builds it.
func LoadPackagerFromYAML(data []byte, opts ...BuildOption) (MessageCodec, error) {
	var config PackagerConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse packager config: %w", err)
	}
	return BuildPackager(&config, opts...)
}

// LoadPackagerFile reads a .json, .yaml or .yml packager description.
func LoadPackagerFile(path string, opts ...BuildOption) (MessageCodec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadPackagerFromJSON(data, opts...)
	case ".yaml", ".yml":
		return LoadPackagerFromYAML(data, opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrConfiguration, filepath.Ext(path))
	}
}

// BuildOption represents a functional option for BuildPackager.
type BuildOption func(*buildContext)

// WithBuildLogger passes a logger to every packager built.
func WithBuildLogger(l *slog.Logger) BuildOption {
	return func(ctx *buildContext) {
		ctx.logger = loggerOrDiscard(l)
	}
}

// buildContext travels down the recursion. path names the node being built
// for error messages.
type buildContext struct {
	path   string
	logger *slog.Logger
}

func (ctx buildContext) child(name string) buildContext {
	ctx.path = ctx.path + "/" + name
	return ctx
}

func (ctx buildContext) errorf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", ctx.path, fmt.Errorf(format, args...))
}

// BuildPackager turns a configuration tree into a codec. All errors found
// are reported together.
func BuildPackager(config *PackagerConfig, opts ...BuildOption) (MessageCodec, error) {
	ctx := buildContext{path: "", logger: discardLogger()}
	for _, opt := range opts {
		opt(&ctx)
	}
	name := config.Name
	if name == "" {
		name = "packager"
	}
	ctx.path = name
	return buildCodec(ctx, config)
}

func buildCodec(ctx buildContext, config *PackagerConfig) (MessageCodec, error) {
	switch config.Kind {
	case "", KindMessage:
		return buildMessagePackager(ctx, config)
	case KindTagged:
		return buildTaggedPackager(ctx, config)
	case KindBERTLV:
		return NewBERTLVPackager(config.MaxDepth, ctx.logger), nil
	default:
		return nil, ctx.errorf("%w: unknown packager kind %q", ErrConfiguration, config.Kind)
	}
}

func sortedFieldNumbers(fields map[int]FieldConfig) []int {
	keys := make([]int, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func buildFieldTable(ctx buildContext, config *PackagerConfig) (map[int]FieldPackager, error) {
	table := make(map[int]FieldPackager, len(config.Fields)+1)
	var errs []error
	for _, n := range sortedFieldNumbers(config.Fields) {
		fc := config.Fields[n]
		fp, err := buildField(ctx.child(fmt.Sprintf("field %d", n)), &fc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		table[n] = fp
	}
	return table, errors.Join(errs...)
}

func buildMessagePackager(ctx buildContext, config *PackagerConfig) (MessageCodec, error) {
	table, err := buildFieldTable(ctx, config)
	if err != nil {
		return nil, err
	}
	opts := []PackagerOption{
		WithLogger(ctx.logger),
		WithDescription(ctx.path),
		WithHeaderLength(config.HeaderLength),
		WithMaxField(config.MaxField),
	}
	if config.FirstField > 0 {
		opts = append(opts, WithFirstField(config.FirstField))
	}
	if config.BestEffort {
		opts = append(opts, WithBestEffortPack())
	}
	if config.Bitmap == nil {
		opts = append(opts, WithoutBitmap())
	} else {
		bitmapField := config.BitmapField
		if bitmapField == 0 {
			bitmapField = 1
		}
		if _, taken := table[bitmapField]; taken {
			return nil, ctx.errorf("%w: field %d is both a data field and the bitmap", ErrConfiguration, bitmapField)
		}
		maxBits := config.Bitmap.MaxBits
		if maxBits == 0 {
			maxBits = DefaultMaxField
		}
		bp, err := NewBitmapPackager(config.Bitmap.Encoding, maxBits, config.Bitmap.Convention)
		if err != nil {
			return nil, ctx.child("bitmap").errorf("%w", err)
		}
		table[bitmapField] = bp
		opts = append(opts, WithBitmapField(bitmapField))
	}
	if config.Validator != nil {
		v, err := buildValidator(ctx.child("validator"), config.Validator)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithValidator(v))
	}
	p, err := NewMessagePackager(table, opts...)
	if err != nil {
		return nil, ctx.errorf("%w", err)
	}
	ctx.logger.Debug("built message packager", "path", ctx.path, "fields", len(table))
	return p, nil
}

func buildTaggedPackager(ctx buildContext, config *PackagerConfig) (MessageCodec, error) {
	tc := config.Tagged
	if tc == nil {
		return nil, ctx.errorf("%w: tagged packager without tagged settings", ErrConfiguration)
	}
	var (
		mapper TagMapper
		err    error
	)
	if len(tc.Tags) > 0 {
		mapper, err = NewMapTagMapper(tc.Tags)
	} else {
		mapper, err = NewDecimalTagMapper(tc.TagSize)
	}
	if err != nil {
		return nil, ctx.errorf("%w", err)
	}
	table, err := buildFieldTable(ctx, config)
	if err != nil {
		return nil, err
	}
	opts := []TaggedOption{
		WithTaggedLogger(ctx.logger),
		WithTaggedDescription(ctx.path),
		WithUnknownTagPolicy(tc.UnknownTags),
	}
	if tc.Swap {
		opts = append(opts, WithSwappedTagLength())
	}
	if tc.LengthBase != 0 {
		opts = append(opts, WithLengthBase(tc.LengthBase))
	}
	if tc.Binary {
		opts = append(opts, WithBinaryValues())
	}
	for n, fp := range table {
		opts = append(opts, WithTagPackager(n, fp))
	}
	p, err := NewTaggedPackager(tc.TagSize, tc.LenSize, mapper, opts...)
	if err != nil {
		return nil, ctx.errorf("%w", err)
	}
	return p, nil
}

func buildField(ctx buildContext, fc *FieldConfig) (FieldPackager, error) {
	if fc.Length <= 0 {
		return nil, ctx.errorf("%w: length %d", ErrConfiguration, fc.Length)
	}
	if fc.Description == "" {
		fc.Description = ctx.path
	}

	var (
		fp  FieldPackager
		err error
	)
	if fc.Class != "" {
		build, ok := legacyRegistry[strings.ToLower(fc.Class)]
		if !ok {
			return nil, ctx.errorf("%w: unknown field class %q (known: %s)", ErrConfiguration, fc.Class, knownNames(legacyRegistry))
		}
		fp, err = build(fc)
	} else {
		fp, err = buildComposed(fc)
	}
	if err != nil {
		return nil, ctx.errorf("%w", err)
	}

	if fc.Sub == nil {
		return fp, nil
	}
	inner, err := buildCodec(ctx.child("sub"), fc.Sub)
	if err != nil {
		return nil, err
	}
	cp, err := NewCompositePackager(fp, inner)
	if err != nil {
		return nil, ctx.errorf("%w", err)
	}
	return cp, nil
}

func buildComposed(fc *FieldConfig) (FieldPackager, error) {
	padder, err := LookupPadder(fc.Padder)
	if err != nil {
		return nil, err
	}
	prefixer, err := LookupPrefixer(fc.Prefixer)
	if err != nil {
		return nil, err
	}
	if fc.DataType == DataTypeBinary {
		bi, err := LookupBinaryInterpreter(fc.Interpreter)
		if err != nil {
			return nil, err
		}
		return NewBinaryFieldPackager(fc.Length, bi, padder, prefixer, fc.Description)
	}
	interp, err := LookupInterpreter(fc.Interpreter)
	if err != nil {
		return nil, err
	}
	return NewFieldPackager(fc.Length, fc.DataType, interp, padder, prefixer, fc.Description)
}

func buildValidator(ctx buildContext, vc *ValidatorConfig) (*MessageValidator, error) {
	fields := make(map[int]ComponentValidator, len(vc.Fields))
	var errs []error
	for n, rc := range vc.Fields {
		rules, err := buildRules(ctx.child(fmt.Sprintf("field %d", n)), rc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fields[n] = NewFieldValidator(rc.BreakOnError, rules...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	var rules []MessageRule
	if len(vc.Mandatory) > 0 {
		rules = append(rules, &MandatoryRule{Fields: append([]int(nil), vc.Mandatory...)})
	}
	return NewMessageValidator(fields, rules, vc.BreakOnError), nil
}

func buildRules(ctx buildContext, rc FieldRulesConfig) ([]ValidationRule, error) {
	var rules []ValidationRule
	if rc.MinLength > 0 || rc.MaxLength > 0 || rc.ExactLength > 0 {
		rules = append(rules, &LengthRule{MinLength: rc.MinLength, MaxLength: rc.MaxLength, ExactLength: rc.ExactLength})
	}
	if rc.NotBlank {
		rules = append(rules, NotBlankRule{})
	}
	if rc.NotZero {
		rules = append(rules, NotZeroRule{})
	}
	if rc.Numeric {
		rules = append(rules, &NumericRule{})
	}
	if rc.Alphanumeric {
		rules = append(rules, &AlphanumericRule{AllowSpecialChars: true})
	}
	if rc.Regex != "" {
		r, err := NewRegexRule(rc.Regex, "", false)
		if err != nil {
			return nil, ctx.errorf("%w", err)
		}
		rules = append(rules, r)
	}
	if rc.Format != "" {
		r, err := NewFormatRule(rc.Format)
		if err != nil {
			return nil, ctx.errorf("%w", err)
		}
		rules = append(rules, r)
	}
	if rc.Range != nil {
		rules = append(rules, &RangeRule{Min: rc.Range.Min, Max: rc.Range.Max})
	}
	return rules, nil
}
