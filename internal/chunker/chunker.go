package chunker

import "iter"

// Split cuts data into consecutive pieces of at most size bytes, yielding
// each piece together with a flag telling whether it is the last one. Empty
// input yields exactly one (empty, true) pair, so a consumer always gets at
// least one piece and therefore a defined end.
func Split(data []byte, size int) iter.Seq2[[]byte, bool] {
	return func(yield func([]byte, bool) bool) {
		if len(data) == 0 {
			yield(data, true)
			return
		}

		for len(data) > size {
			if !yield(data[:size], false) {
				return
			}

			data = data[size:]
		}

		yield(data, true)
	}
}
