package uploads

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"os"

	"github.com/bifrost-web/bifrost/http/mime"
)

// UploadedFile is a single parsed file part, backed either by memory or by
// a spooled temporary file. Close releases the backing resource (and
// removes the temporary file); it is idempotent.
type UploadedFile struct {
	Name        string
	ContentType mime.MIME
	Charset     mime.Charset
	Size        int64

	content []byte
	tmp     *os.File
	closed  bool
}

// NewMemoryFile wraps in-memory content.
func NewMemoryFile(name string, contentType mime.MIME, charset mime.Charset, content []byte) *UploadedFile {
	return &UploadedFile{
		Name:        name,
		ContentType: contentType,
		Charset:     charset,
		Size:        int64(len(content)),
		content:     content,
	}
}

// NewSpooledFile wraps a temporary file the upload was written into. The
// file stays open until Close.
func NewSpooledFile(name string, contentType mime.MIME, charset mime.Charset, tmp *os.File, size int64) *UploadedFile {
	return &UploadedFile{
		Name:        name,
		ContentType: contentType,
		Charset:     charset,
		Size:        size,
		tmp:         tmp,
	}
}

// InMemory reports whether the content lives in RAM.
func (f *UploadedFile) InMemory() bool {
	return f.tmp == nil
}

// TempPath returns the spool file location, empty for in-memory content.
func (f *UploadedFile) TempPath() string {
	if f.tmp == nil {
		return ""
	}

	return f.tmp.Name()
}

// Open positions the content at its start and returns a reader over it.
// The returned reader of a spooled file shares the underlying descriptor,
// so at most one should be active at a time.
func (f *UploadedFile) Open() (io.ReadSeeker, error) {
	if f.closed {
		return nil, errors.New("uploads: file already closed")
	}

	if f.tmp == nil {
		return bytes.NewReader(f.content), nil
	}

	if _, err := f.tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return f.tmp, nil
}

// Bytes reads the whole content into memory.
func (f *UploadedFile) Bytes() ([]byte, error) {
	if f.tmp == nil {
		return f.content, nil
	}

	r, err := f.Open()
	if err != nil {
		return nil, err
	}

	return io.ReadAll(r)
}

func (f *UploadedFile) Close() error {
	if f.closed {
		return nil
	}

	f.closed = true

	if f.tmp == nil {
		return nil
	}

	name := f.tmp.Name()
	err := f.tmp.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}

	return err
}

// Files is a multimap of field name to uploaded files, in arrival order.
type Files struct {
	entries []fileEntry
}

type fileEntry struct {
	field string
	file  *UploadedFile
}

func NewFiles() *Files {
	return new(Files)
}

func (f *Files) Add(field string, file *UploadedFile) *Files {
	f.entries = append(f.entries, fileEntry{field: field, file: file})
	return f
}

// Get returns the first file uploaded under the field.
func (f *Files) Get(field string) (*UploadedFile, bool) {
	for _, e := range f.entries {
		if e.field == field {
			return e.file, true
		}
	}

	return nil, false
}

// All iterates over every file uploaded under the field.
func (f *Files) All(field string) iter.Seq[*UploadedFile] {
	return func(yield func(*UploadedFile) bool) {
		for _, e := range f.entries {
			if e.field == field && !yield(e.file) {
				return
			}
		}
	}
}

// Iter iterates over all (field, file) pairs in arrival order.
func (f *Files) Iter() iter.Seq2[string, *UploadedFile] {
	return func(yield func(string, *UploadedFile) bool) {
		for _, e := range f.entries {
			if !yield(e.field, e.file) {
				return
			}
		}
	}
}

func (f *Files) Len() int {
	if f == nil {
		return 0
	}

	return len(f.entries)
}

func (f *Files) Has(field string) bool {
	_, found := f.Get(field)
	return found
}

// Close releases every stored file, returning the first error encountered.
func (f *Files) Close() error {
	if f == nil {
		return nil
	}

	var first error
	for _, e := range f.entries {
		if err := e.file.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
