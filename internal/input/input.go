// Package input turns a path, a byte slice or a stream into a Document the harvester can route.
package input

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/common"
)

// Source kinds.
const (
	SourcePath   = "path"
	SourceBytes  = "bytes"
	SourceStream = "stream"
)

// Document is the canonical form of any accepted input.
type Document struct {
	Data       []byte
	Filename   string // base name, possibly generated
	Ext        string // normalized, no dot
	MediaType  string
	Format     constants.Format
	DocumentID string
	FilePath   string // set for path inputs only
	Size       int64
	SHA256     string
	Source     string
	Sniffed    bool // media type came from the content, not the name
}

// IsImage reports whether the document goes to the vision path.
func (d *Document) IsImage() bool {
	return d.Format == constants.IMAGE
}

// Clock is swapped in tests to pin generated names.
var Clock = time.Now

// Normalize accepts a string path, a []byte or an io.Reader.
// filename overrides the name used for extension and id inference.
func Normalize(src any, filename string) (*Document, error) {
	switch s := src.(type) {
	case string:
		return FromPath(s, filename)
	case []byte:
		return FromBytes(s, filename)
	case io.Reader:
		return FromReader(s, filename)
	case nil:
		return nil, common.UnsupportedInputf("unsupported source type: <nil>. Use a path, []byte or io.Reader")
	default:
		return nil, common.UnsupportedInputf("unsupported source type: %T. Use a path, []byte or io.Reader", src)
	}
}

// FromPath reads a file from disk; the document id is the file stem.
func FromPath(path, filename string) (*Document, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.UnreadableInput(fmt.Sprintf("file not found: %s", path), err)
		}
		return nil, common.UnreadableInput(fmt.Sprintf("stat %s", path), err)
	}
	if st.IsDir() {
		return nil, common.UnreadableInput(fmt.Sprintf("%s is a directory", path), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.UnreadableInput(fmt.Sprintf("read %s", path), err)
	}

	name := filepath.Base(path)
	if filename != "" {
		name = filepath.Base(filename)
	}
	doc, err := build(data, name, SourcePath)
	if err != nil {
		return nil, err
	}
	doc.FilePath = path
	doc.DocumentID = stem(filepath.Base(path))
	return doc, nil
}

// FromBytes wraps raw content; without a filename a doc_YYYYMMDD_HHMMSS name is generated.
func FromBytes(data []byte, filename string) (*Document, error) {
	name := filepath.Base(filename)
	if filename == "" {
		name = generatedName()
	}
	return build(data, name, SourceBytes)
}

type named interface {
	Name() string
}

// FromReader drains r. The filename argument wins over a Name() method on r (e.g. *os.File).
func FromReader(r io.Reader, filename string) (*Document, error) {
	if r == nil {
		return nil, common.UnsupportedInputf("unsupported source type: <nil>. Use a path, []byte or io.Reader")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, common.UnreadableInput("read stream", err)
	}

	name := filepath.Base(filename)
	if filename == "" {
		if n, ok := r.(named); ok && n.Name() != "" {
			name = filepath.Base(n.Name())
		} else {
			name = generatedName()
		}
	}
	return build(data, name, SourceStream)
}

func build(data []byte, name, source string) (*Document, error) {
	doc := &Document{
		Data:       data,
		Filename:   name,
		DocumentID: stem(name),
		Size:       int64(len(data)),
		SHA256:     hashHex(data),
		Source:     source,
	}

	ext := constants.NormalizeExt(filepath.Ext(name))
	if ext == "" && len(data) > 0 {
		if sniffed, ok := constants.ExtForMediaType(http.DetectContentType(data)); ok {
			ext = sniffed
			doc.Sniffed = true
		}
	}

	mt, ok := constants.MediaTypeForExt(ext)
	if !ok {
		shown := "." + ext
		if ext == "" {
			shown = "(none)"
		}
		return nil, common.UnsupportedInputf("unsupported file type: %s. Supported: %s",
			shown, strings.Join(constants.SupportedExtensions, ", "))
	}
	doc.Ext = ext
	doc.MediaType = mt
	doc.Format = constants.MapExtToFormat(ext)
	return doc, nil
}

func generatedName() string {
	return "doc_" + Clock().Format("20060102_150405")
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
