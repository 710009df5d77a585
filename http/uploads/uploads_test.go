package uploads

import (
	"io"
	"os"
	"testing"

	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"
)

func TestUploadedFile(t *testing.T) {
	t.Run("memory backed", func(t *testing.T) {
		file := NewMemoryFile("report.txt", mime.Plain, mime.UTF8, []byte("hello"))
		require.True(t, file.InMemory())
		require.Empty(t, file.TempPath())
		require.EqualValues(t, 5, file.Size)

		content, err := file.Bytes()
		require.NoError(t, err)
		require.Equal(t, "hello", string(content))

		r, err := file.Open()
		require.NoError(t, err)
		again, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, "hello", string(again))

		require.NoError(t, file.Close())
		require.NoError(t, file.Close())
		_, err = file.Open()
		require.Error(t, err)
	})

	t.Run("spooled to disk", func(t *testing.T) {
		tmp, err := os.CreateTemp(t.TempDir(), "upload*.upload")
		require.NoError(t, err)
		_, err = tmp.WriteString("spooled content")
		require.NoError(t, err)

		file := NewSpooledFile("big.bin", mime.OctetStream, mime.UTF8, tmp, 15)
		require.False(t, file.InMemory())
		require.Equal(t, tmp.Name(), file.TempPath())

		// Open rewinds, so the write position doesn't leak into reads
		content, err := file.Bytes()
		require.NoError(t, err)
		require.Equal(t, "spooled content", string(content))

		require.NoError(t, file.Close())
		_, err = os.Stat(tmp.Name())
		require.True(t, os.IsNotExist(err))
		require.NoError(t, file.Close())
	})
}

func TestFiles(t *testing.T) {
	files := NewFiles().
		Add("doc", NewMemoryFile("a.txt", mime.Plain, mime.UTF8, []byte("a"))).
		Add("doc", NewMemoryFile("b.txt", mime.Plain, mime.UTF8, []byte("b"))).
		Add("pic", NewMemoryFile("c.png", "image/png", mime.UTF8, []byte("c")))

	require.Equal(t, 3, files.Len())
	require.True(t, files.Has("doc"))
	require.False(t, files.Has("missing"))

	first, found := files.Get("doc")
	require.True(t, found)
	require.Equal(t, "a.txt", first.Name)

	var names []string
	for file := range files.All("doc") {
		names = append(names, file.Name)
	}
	require.Equal(t, []string{"a.txt", "b.txt"}, names)

	var fields []string
	for field, file := range files.Iter() {
		fields = append(fields, field+":"+file.Name)
	}
	require.Equal(t, []string{"doc:a.txt", "doc:b.txt", "pic:c.png"}, fields)

	require.NoError(t, files.Close())
}

func TestMemoryHandler(t *testing.T) {
	info := FileInfo{FieldName: "doc", FileName: "a.txt", ContentType: mime.Plain, Charset: mime.UTF8, ContentLength: -1}

	t.Run("collects when the body fits", func(t *testing.T) {
		h := NewMemoryHandler(1 << 20)
		_, _, handled := h.RawInput(nil, nil, 10, nil)
		require.False(t, handled)

		require.ErrorIs(t, h.NewFile(info), StopFutureHandlers)

		leftover, err := h.ReceiveDataChunk([]byte("hel"), 0)
		require.NoError(t, err)
		require.Empty(t, leftover)
		_, err = h.ReceiveDataChunk([]byte("lo"), 3)
		require.NoError(t, err)

		file, err := h.FileComplete(5)
		require.NoError(t, err)
		require.NotNil(t, file)
		require.Equal(t, "a.txt", file.Name)
		require.True(t, file.InMemory())

		content, err := file.Bytes()
		require.NoError(t, err)
		require.Equal(t, "hello", string(content))
	})

	t.Run("steps aside for large bodies", func(t *testing.T) {
		h := NewMemoryHandler(4)
		h.RawInput(nil, nil, 100, nil)

		require.NoError(t, h.NewFile(info))

		chunk := []byte(uniuri.New())
		passed, err := h.ReceiveDataChunk(chunk, 0)
		require.NoError(t, err)
		require.Equal(t, chunk, passed)

		file, err := h.FileComplete(int64(len(chunk)))
		require.NoError(t, err)
		require.Nil(t, file)
	})

	t.Run("unannounced length steps aside too", func(t *testing.T) {
		h := NewMemoryHandler(1 << 20)
		h.RawInput(nil, nil, -1, nil)
		require.NoError(t, h.NewFile(info))
	})
}

func TestTempFileHandler(t *testing.T) {
	info := FileInfo{FieldName: "doc", FileName: "big.bin", ContentType: mime.OctetStream, Charset: mime.UTF8, ContentLength: -1}

	t.Run("spools and hands the file over", func(t *testing.T) {
		dir := t.TempDir()
		h := NewTempFileHandler(dir)
		require.NoError(t, h.NewFile(info))

		_, err := h.ReceiveDataChunk([]byte("spooled "), 0)
		require.NoError(t, err)
		_, err = h.ReceiveDataChunk([]byte("content"), 8)
		require.NoError(t, err)

		file, err := h.FileComplete(15)
		require.NoError(t, err)
		require.NotNil(t, file)
		require.False(t, file.InMemory())

		content, err := file.Bytes()
		require.NoError(t, err)
		require.Equal(t, "spooled content", string(content))
		require.NoError(t, file.Close())
	})

	t.Run("interrupt removes the spool file", func(t *testing.T) {
		dir := t.TempDir()
		h := NewTempFileHandler(dir)
		require.NoError(t, h.NewFile(info))
		_, err := h.ReceiveDataChunk([]byte("partial"), 0)
		require.NoError(t, err)

		h.UploadInterrupted()

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("passes chunks through before any file is opened", func(t *testing.T) {
		h := NewTempFileHandler(t.TempDir())
		chunk := []byte("untouched")
		passed, err := h.ReceiveDataChunk(chunk, 0)
		require.NoError(t, err)
		require.Equal(t, chunk, passed)
	})
}
