package urlencoded

import (
	"bytes"

	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/kv"
)

// Limits bounds how much form data a single request may carry. A negative
// MaxFields disables the count check; MaxSize always applies.
type Limits struct {
	MaxSize   int64
	MaxFields int
}

// ParseForm splits an application/x-www-form-urlencoded body into the given
// storage. Size accounting mirrors the multipart field quota: each field
// costs len(name)+len(value) plus two bytes of framing ("&=").
func ParseForm(data []byte, into *kv.Storage, limits Limits) error {
	var (
		read   int64
		fields int
		buff   []byte
	)

	for len(data) > 0 {
		var pair []byte
		if amp := bytes.IndexByte(data, '&'); amp != -1 {
			pair, data = data[:amp], data[amp+1:]
		} else {
			pair, data = data, nil
		}

		if len(pair) == 0 {
			continue
		}

		fields++
		if limits.MaxFields >= 0 && fields > limits.MaxFields {
			return status.ErrTooManyFields
		}

		var name, value []byte
		if eq := bytes.IndexByte(pair, '='); eq != -1 {
			name, value = pair[:eq], pair[eq+1:]
		} else {
			name = pair
		}

		var err error
		name, buff, err = ExtendedDecode(name, buff[:0])
		if err != nil {
			return err
		}
		decodedName := string(name)

		value, buff, err = ExtendedDecode(value, buff[:0])
		if err != nil {
			return err
		}
		decodedValue := string(value)

		read += int64(len(decodedName)) + int64(len(decodedValue)) + 2
		if read > limits.MaxSize {
			return status.ErrDataTooBig
		}

		into.Add(decodedName, decodedValue)
	}

	return nil
}
