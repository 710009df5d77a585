package uploads

import (
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/kv"
)

// MemoryHandler keeps uploads in RAM as long as the request announces a
// body small enough to fit the configured limit. It activates (or not) once
// per request based on the total content length and, when active, claims
// exclusive ownership of every file part.
type MemoryHandler struct {
	BaseHandler
	maxMemory int64
	activated bool
	info      FileInfo
	buff      []byte
}

func NewMemoryHandler(maxMemory int64) *MemoryHandler {
	return &MemoryHandler{maxMemory: maxMemory}
}

func (m *MemoryHandler) ChunkSize() int {
	return 64 * 1024
}

func (m *MemoryHandler) RawInput(_ lazystream.Source, _ *kv.Storage, contentLength int64, _ []byte) (*kv.Storage, *Files, bool) {
	// the whole body fitting in memory is decided once, by the announced
	// request length, not per part
	m.activated = contentLength >= 0 && contentLength <= m.maxMemory
	return nil, nil, false
}

func (m *MemoryHandler) NewFile(info FileInfo) error {
	if !m.activated {
		return nil
	}

	m.info = info
	m.buff = nil

	return StopFutureHandlers
}

func (m *MemoryHandler) ReceiveDataChunk(chunk []byte, _ int64) ([]byte, error) {
	if !m.activated {
		return chunk, nil
	}

	m.buff = append(m.buff, chunk...)

	return nil, nil
}

func (m *MemoryHandler) FileComplete(size int64) (*UploadedFile, error) {
	if !m.activated {
		return nil, nil
	}

	file := NewMemoryFile(m.info.FileName, m.info.ContentType, m.info.Charset, m.buff)
	file.Size = size
	m.buff = nil

	return file, nil
}
