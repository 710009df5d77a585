package lazystream

import "io"

// ChunkSource adapts an io.Reader into a Source yielding chunks of at most
// chunkSize bytes. The buffer is reused between Retrieve calls.
type ChunkSource struct {
	r    io.Reader
	buff []byte
}

func NewChunkSource(r io.Reader, chunkSize int) *ChunkSource {
	return &ChunkSource{
		r:    r,
		buff: make([]byte, chunkSize),
	}
}

func (c *ChunkSource) Retrieve() ([]byte, error) {
	for {
		n, err := c.r.Read(c.buff)
		if n > 0 {
			return c.buff[:n], nil
		}

		if err != nil {
			return nil, err
		}
	}
}
