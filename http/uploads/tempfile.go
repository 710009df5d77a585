package uploads

import (
	"os"
)

// TempFileHandler spools every file part to a temporary *.upload file on
// disk. It is the fallback that handles what MemoryHandler refused.
type TempFileHandler struct {
	BaseHandler
	dir  string
	info FileInfo
	file *os.File
}

// NewTempFileHandler spools into dir; an empty dir means the system
// default temp directory.
func NewTempFileHandler(dir string) *TempFileHandler {
	return &TempFileHandler{dir: dir}
}

func (t *TempFileHandler) ChunkSize() int {
	return 64 * 1024
}

func (t *TempFileHandler) NewFile(info FileInfo) error {
	t.discard()

	file, err := os.CreateTemp(t.dir, "upload*.upload")
	if err != nil {
		// disk trouble is not the client's fault; aborting the whole
		// upload is the only honest option
		return StopUpload{ConnectionReset: true}
	}

	t.info = info
	t.file = file

	return nil
}

func (t *TempFileHandler) ReceiveDataChunk(chunk []byte, _ int64) ([]byte, error) {
	if t.file == nil {
		return chunk, nil
	}

	if _, err := t.file.Write(chunk); err != nil {
		return nil, StopUpload{ConnectionReset: true}
	}

	return nil, nil
}

func (t *TempFileHandler) FileComplete(size int64) (*UploadedFile, error) {
	if t.file == nil {
		return nil, nil
	}

	file := NewSpooledFile(t.info.FileName, t.info.ContentType, t.info.Charset, t.file, size)
	t.file = nil

	return file, nil
}

func (t *TempFileHandler) UploadInterrupted() {
	t.discard()
}

func (t *TempFileHandler) discard() {
	if t.file == nil {
		return
	}

	name := t.file.Name()
	_ = t.file.Close()
	_ = os.Remove(name)
	t.file = nil
}
