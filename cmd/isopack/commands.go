package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mkadit/isopack"
	"github.com/mkadit/isopack/internal/frame"
	"github.com/mkadit/isopack/processor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// messageDoc is the YAML (or JSON) form of a message given to pack.
// Header and binary values are hex.
type messageDoc struct {
	MTI    string         `yaml:"mti" json:"mti"`
	Header string         `yaml:"header,omitempty" json:"header,omitempty"`
	Fields map[int]string `yaml:"fields,omitempty" json:"fields,omitempty"`
	Binary map[int]string `yaml:"binary,omitempty" json:"binary,omitempty"`
}

func (d *messageDoc) message() (*isopack.Message, error) {
	b := isopack.NewBuilder()
	if d.MTI != "" {
		b.MTI(d.MTI)
	}
	if d.Header != "" {
		h, err := hex.DecodeString(d.Header)
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		b.Header(h)
	}
	for n, v := range d.Fields {
		b.Field(n, v)
	}
	for n, v := range d.Binary {
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", n, err)
		}
		b.Binary(n, raw)
	}
	return b.Build()
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func newPackCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pack [FILE]",
		Short: "Pack messages described in YAML or JSON",
		Long: "Pack reads one or more YAML documents (JSON also works), each with mti,\n" +
			"fields and binary keys, and writes the framed wire bytes to stdout.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			kind, err := opts.frameKind()
			if err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var msgs []*isopack.Message
			dec := yaml.NewDecoder(bytes.NewReader(input))
			for {
				var doc messageDoc
				if err := dec.Decode(&doc); err == io.EOF {
					break
				} else if err != nil {
					return fmt.Errorf("failed to parse message %d: %w", len(msgs), err)
				}
				m, err := doc.message()
				if err != nil {
					return fmt.Errorf("message %d: %w", len(msgs), err)
				}
				msgs = append(msgs, m)
			}

			proc, err := processor.New(codec, processor.WithLogger(opts.logger), processor.WithConcurrency(opts.concurrency))
			if err != nil {
				return err
			}
			packed, err := proc.PackBatch(cmd.Context(), msgs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, b := range packed {
				if opts.hex {
					framed, err := frame.Append(nil, kind, b)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, strings.ToUpper(hex.EncodeToString(framed)))
					continue
				}
				if err := frame.Write(out, kind, b); err != nil {
					return err
				}
			}
			opts.logger.Info("packed messages", "count", len(packed))
			return nil
		},
	}
}

func newUnpackCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unpack [FILE]",
		Short: "Unpack framed wire data and dump the messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := unpackInput(cmd, opts, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				m.Dump(out, "")
			}
			return nil
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [FILE]",
		Short: "Check a packager description, and optionally that FILE unpacks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			describeCodec(out, codec)
			if len(args) == 0 {
				return nil
			}
			msgs, err := unpackInput(cmd, opts, args)
			if err != nil {
				return err
			}
			invalid := 0
			for i, m := range msgs {
				for _, ve := range m.ValidationErrors() {
					invalid++
					fmt.Fprintf(out, "message %d: %v\n", i, ve)
				}
			}
			fmt.Fprintf(out, "%d messages, %d validation errors\n", len(msgs), invalid)
			if invalid > 0 {
				return fmt.Errorf("%d validation errors", invalid)
			}
			return nil
		},
	}
}

func unpackInput(cmd *cobra.Command, opts *rootOptions, args []string) ([]*isopack.Message, error) {
	codec, err := opts.codec()
	if err != nil {
		return nil, err
	}
	kind, err := opts.frameKind()
	if err != nil {
		return nil, err
	}
	input, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	if opts.hex {
		input, err = hex.DecodeString(strings.Join(strings.Fields(string(input)), ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode hex input: %w", err)
		}
	}
	frames, err := frame.Split(input, kind)
	if err != nil {
		return nil, err
	}
	proc, err := processor.New(codec, processor.WithLogger(opts.logger), processor.WithConcurrency(opts.concurrency))
	if err != nil {
		return nil, err
	}
	return proc.UnpackBatch(cmd.Context(), frames)
}

func describeCodec(w io.Writer, codec isopack.MessageCodec) {
	type described interface{ Description() string }
	if d, ok := codec.(described); ok {
		fmt.Fprintf(w, "packager: %s\n", d.Description())
	}
	mp, ok := codec.(*isopack.MessagePackager)
	if !ok {
		return
	}
	for _, n := range mp.FieldNumbers() {
		fp := mp.FieldPackager(n)
		fmt.Fprintf(w, "  %3d  %-40s max %d\n", n, fp.Description(), fp.MaxLength())
	}
}
