package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/pdf/pdftest"
)

func TestRedactCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(in, pdftest.Build([]pdftest.Line{pdftest.At(72, 700, "Acme and Acme")}), 0o600))

	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"redact", in, out, "-r", `{"Acme":"a company"}`})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "replaced 2 occurrence(s)")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRedactCommandRejectsBadReplacements(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"redact", "a.pdf", "b.pdf", "-r", `["Acme"]`})
	assert.Error(t, cmd.Execute())
}

func TestRateCommandRequiresIntegerRating(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"rate", "abc", "five"})
	assert.ErrorContains(t, cmd.Execute(), "rating must be an integer")
}
