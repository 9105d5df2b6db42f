package textextract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/input"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error

	gotName string
	gotArgs []string
	sawFile bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.gotName = name
	f.gotArgs = args
	if len(args) >= 2 {
		_, statErr := os.Stat(args[len(args)-2])
		f.sawFile = statErr == nil
	}
	return f.stdout, f.stderr, f.err
}

func newTestExtractor(r Runner) *Extractor {
	return NewExtractor(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil))).WithRunner(r)
}

func mustDoc(t *testing.T, data []byte, name string) *input.Document {
	t.Helper()
	doc, err := input.FromBytes(data, name)
	require.NoError(t, err)
	return doc
}

func TestExtractPlainText(t *testing.T) {
	e := newTestExtractor(&fakeRunner{})
	res, err := e.Extract(context.Background(), mustDoc(t, []byte("Invoice #7\nTotal: 12.00 €"), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Invoice #7\nTotal: 12.00 €", res.Text)
	assert.Equal(t, "plain", res.Method)
	assert.Equal(t, 1, res.Pages)
}

func TestExtractInvalidUTF8(t *testing.T) {
	e := newTestExtractor(&fakeRunner{})
	_, err := e.Extract(context.Background(), mustDoc(t, []byte{0xff, 0xfe, 0xfd}, "bad.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnreadableInput))
}

func TestExtractPDFFromBytesUsesTempFile(t *testing.T) {
	r := &fakeRunner{stdout: []byte("page one\fpage two\f")}
	e := newTestExtractor(r)

	res, err := e.Extract(context.Background(), mustDoc(t, []byte("%PDF-1.4 fake"), "scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdftotext", r.gotName)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}, r.gotArgs[:5])
	assert.Equal(t, "-", r.gotArgs[len(r.gotArgs)-1])
	assert.True(t, r.sawFile)
	assert.Equal(t, "page one\fpage two", res.Text)
	assert.Equal(t, 2, res.Pages)
}

func TestExtractPDFFromPathUsesFile(t *testing.T) {
	path := t.TempDir() + "/statement.pdf"
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	doc, err := input.FromPath(path, "")
	require.NoError(t, err)

	r := &fakeRunner{stdout: []byte("hello")}
	_, err = newTestExtractor(r).Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, path, r.gotArgs[len(r.gotArgs)-2])
}

func TestExtractPDFWithoutTextLayer(t *testing.T) {
	e := newTestExtractor(&fakeRunner{stdout: []byte("  \n\f\n")})
	_, err := e.Extract(context.Background(), mustDoc(t, []byte("%PDF-1.4"), "scan.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoText))
	assert.True(t, errors.Is(err, common.ErrUnreadableInput))
	assert.Contains(t, err.Error(), "might need OCR")
}

func TestExtractPDFToolFailure(t *testing.T) {
	e := newTestExtractor(&fakeRunner{stderr: []byte("Syntax Error: broken xref\n"), err: errors.New("exit status 1")})
	res, err := e.Extract(context.Background(), mustDoc(t, []byte("%PDF-1.4"), "broken.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnreadableInput))
	assert.Equal(t, []string{"Syntax Error: broken xref"}, res.Warnings)
}

func TestExtractRejectsImages(t *testing.T) {
	e := newTestExtractor(&fakeRunner{})
	_, err := e.Extract(context.Background(), mustDoc(t, []byte("x"), "a.png"))
	assert.True(t, errors.Is(err, common.ErrUnsupportedInput))
}
