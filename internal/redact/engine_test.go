package redact_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/model"
	pdfutil "github.com/dharsanguruparan/DocScrub/internal/pdf"
	"github.com/dharsanguruparan/DocScrub/internal/pdf/pdftest"
	"github.com/dharsanguruparan/DocScrub/internal/redact"
)

func acmeDocument() []byte {
	return pdftest.Build(
		[]pdftest.Line{
			pdftest.At(72, 700, "Acme Corp"),
			pdftest.At(72, 680, "Signed on behalf of Acme Corp"),
		},
		[]pdftest.Line{
			pdftest.At(72, 700, "Acme Corp, all rights reserved"),
		},
	)
}

func TestApplyCountsAcrossPages(t *testing.T) {
	var out bytes.Buffer
	count, err := redact.New().Apply(bytes.NewReader(acmeDocument()), &out, model.Replacements{
		{Old: "Acme Corp", New: "REDACTED"},
		{Old: "", New: "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	n, err := api.PageCount(bytes.NewReader(out.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// pageTexts returns the text of every page of data as a reader extracts it.
func pageTexts(t *testing.T, data []byte) []string {
	t.Helper()
	pages, err := pdfutil.ReadPages(data)
	require.NoError(t, err)
	out := make([]string, len(pages))
	for i, p := range pages {
		var b strings.Builder
		for _, g := range p.Glyphs {
			b.WriteString(g.S)
		}
		out[i] = b.String()
	}
	return out
}

func TestApplyEmptyReplacements(t *testing.T) {
	var out bytes.Buffer
	count, err := redact.New().Apply(bytes.NewReader(acmeDocument()), &out, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, pageTexts(t, acmeDocument()), pageTexts(t, out.Bytes()))
}

func TestApplyWritesReplacementText(t *testing.T) {
	var out bytes.Buffer
	_, err := redact.New().Apply(bytes.NewReader(acmeDocument()), &out, model.Replacements{{Old: "Acme Corp", New: "REDACTED"}})
	require.NoError(t, err)

	texts := pageTexts(t, out.Bytes())
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Signed on behalf of")
	assert.Contains(t, texts[1], ", all rights reserved")
	for _, text := range texts {
		assert.Contains(t, text, "REDACTED")
		assert.NotContains(t, text, "Acme")
	}
}

func TestApplyRemovesCoveredTextFromContent(t *testing.T) {
	pairs := model.Replacements{{Old: "Acme Corp", New: ""}}
	var out bytes.Buffer
	count, err := redact.New().Apply(bytes.NewReader(acmeDocument()), &out, pairs)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, text := range pageTexts(t, out.Bytes()) {
		assert.NotContains(t, text, "Acme")
	}

	var again bytes.Buffer
	count, err = redact.New().Apply(bytes.NewReader(out.Bytes()), &again, pairs)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing left to find in the output")
}

func TestApplyUnparseable(t *testing.T) {
	var out bytes.Buffer
	count, err := redact.New().Apply(bytes.NewReader([]byte("%PDF-1.4\nnot really")), &out, model.Replacements{{Old: "a", New: "b"}})
	require.Error(t, err)
	assert.Zero(t, count)
	assert.Zero(t, out.Len(), "nothing is written on failure")

	kind, ok := redact.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorUnparseable, kind)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestApplyWriteFailure(t *testing.T) {
	_, err := redact.New().Apply(bytes.NewReader(acmeDocument()), failingWriter{}, model.Replacements{{Old: "Acme", New: "X"}})
	kind, ok := redact.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorWrite, kind)
	assert.Contains(t, err.Error(), "disk full")
}

func TestApplyFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(in, acmeDocument(), 0o600))

	count, err := redact.New().ApplyFile(in, out, model.Replacements{{Old: "rights", New: "wrongs"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.FileExists(t, out)

	_, err = redact.New().ApplyFile(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "never.pdf"), nil)
	kind, _ := redact.KindOf(err)
	assert.Equal(t, model.ErrorUnparseable, kind)
	assert.NoFileExists(t, filepath.Join(dir, "never.pdf"))
}

func TestApplyFileUnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	require.NoError(t, os.WriteFile(in, acmeDocument(), 0o600))

	_, err := redact.New().ApplyFile(in, filepath.Join(dir, "no-such-dir", "out.pdf"), nil)
	kind, ok := redact.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorWrite, kind)
}
