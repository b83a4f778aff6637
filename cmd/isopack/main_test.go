package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestPackUnpackCommands(t *testing.T) {
	doc := "mti: '0800'\nfields:\n  11: '000001'\n  70: '301'\n"
	packed, err := run(t, doc, "pack", "--hex", "--frame", "ascii4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(packed, "30303435"), "ascii4 length 0045, got %s", packed)

	dump, err := run(t, packed, "unpack", "--hex", "--frame", "ascii4")
	require.NoError(t, err)
	assert.Contains(t, dump, `<field id="0" value="0800"/>`)
	assert.Contains(t, dump, `<field id="11" value="000001"/>`)
	assert.Contains(t, dump, `<field id="70" value="301"/>`)
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "", "check", "--config", "../../testdata/pos.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "packager: pos")
	assert.Contains(t, out, "Primary Account Number")
}

func TestUnknownFormat(t *testing.T) {
	_, err := run(t, "", "check", "--format", "iso93")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "", "unpack", "--frame", "bin3")
	assert.Error(t, err)
}
