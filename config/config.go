package config

import (
	"time"

	"github.com/bifrost-web/bifrost/http/mime"
)

type (
	Uploads struct {
		// FileMaxMemorySize is the biggest announced file size, in bytes,
		// that the in-memory upload handler agrees to keep in RAM. Bigger
		// uploads spill to temporary files.
		FileMaxMemorySize int64
		// DataMaxSize caps the cumulative number of bytes of ordinary form
		// fields (names and values, with per-field framing overhead) read
		// into memory per request. Exceeding it fails the request.
		DataMaxSize int64
		// MaxNumberFields limits the number of form fields per request.
		// Negative disables the check.
		MaxNumberFields int
		// MaxNumberFiles limits the number of file parts per request.
		// Negative disables the check.
		MaxNumberFiles int
		// MaxPartHeaderSize caps the header block of a single multipart
		// part.
		MaxPartHeaderSize int
		// TempDir is where spooled uploads land. Empty means the system
		// default.
		TempDir string
		// DefaultCharset is assumed for form data unless the request
		// negotiates another one.
		DefaultCharset mime.Charset
	}

	Body struct {
		// ReadTimeout bounds how long a single body-chunk await may take
		// before the connection is treated as stalled.
		ReadTimeout time.Duration
		// ChunkSize is the granularity the body stream is pulled at when a
		// parser asks for look-ahead.
		ChunkSize int
		Uploads   Uploads
	}

	HTTP struct {
		// ChunkSize is the largest http.response.body payload produced for
		// in-memory response content.
		ChunkSize int
		// FileChunkSize is the largest payload produced for file-backed
		// content. Kept bigger to cut per-message overhead on large
		// downloads.
		FileChunkSize int
	}

	URL struct {
		// ScriptName, when non-empty, overrides the mount prefix announced
		// by the transport in the scope's root path.
		ScriptName string
	}

	NET struct {
		// ReadBufferSize is the size of the buffer used to read from a
		// socket by the bundled HTTP/1.1 transport.
		ReadBufferSize int
		// ReadTimeout closes connections that stay silent for too long.
		ReadTimeout time.Duration
		// AcceptLoopInterruptPeriod controls how often the Accept() call is
		// interrupted in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration
	}
)

// Config holds settings used across the gateway, mainly restrictions,
// limitations and pre-allocations. All values are read-only after startup.
type Config struct {
	Body Body
	HTTP HTTP
	URL  URL
	NET  NET
}

// Default returns the default config. The quotas follow widely deployed
// framework defaults and are deliberately conservative.
func Default() *Config {
	return &Config{
		Body: Body{
			ReadTimeout: 60 * time.Second,
			ChunkSize:   64 * 1024,
			Uploads: Uploads{
				FileMaxMemorySize: 2_621_440, // 2.5 MiB
				DataMaxSize:       2_621_440, // 2.5 MiB
				MaxNumberFields:   1000,
				MaxNumberFiles:    100,
				MaxPartHeaderSize: 1024,
				DefaultCharset:    mime.UTF8,
			},
		},
		HTTP: HTTP{
			ChunkSize:     64 * 1024,
			FileChunkSize: 512 * 1024,
		},
		NET: NET{
			ReadBufferSize:            8 * 1024,
			ReadTimeout:               90 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
		},
	}
}
