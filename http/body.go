package http

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

type BodyCallback func([]byte) error

// Body adapts the inbound message channel into a pull source. It is the
// single owner of the receive callable: nothing else may pull messages
// while a request is alive.
//
// A disconnect is terminal. Once observed, every subsequent read fails
// with status.ErrRequestAborted, and no data read earlier is invalidated.
type Body struct {
	ctx     context.Context
	receive asgi.Receive
	request *Request
	timeout time.Duration
	hasMore bool
	pending []byte
	buff    []byte
	error   error
}

func NewBody(ctx context.Context, receive asgi.Receive, request *Request, cfg *config.Config) *Body {
	return &Body{
		ctx:     ctx,
		receive: receive,
		request: request,
		timeout: cfg.Body.ReadTimeout,
		hasMore: true,
	}
}

// Retrieve awaits the next body chunk. io.EOF reports a completed body;
// a chunk may come back empty with a nil error if the peer sent an empty
// non-final message.
func (b *Body) Retrieve() ([]byte, error) {
	if b.error != nil {
		return nil, b.error
	}

	if !b.hasMore {
		return nil, io.EOF
	}

	ctx := b.ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(b.ctx, b.timeout)
		defer cancel()
	}

	msg, err := b.receive(ctx)
	if err != nil {
		return nil, b.fail(err)
	}

	switch msg.Type {
	case asgi.MsgRequest:
		b.hasMore = msg.MoreBody
		return msg.Body, nil
	case asgi.MsgDisconnect:
		return nil, b.fail(status.ErrRequestAborted)
	default:
		return nil, b.fail(asgi.Violation("unexpected message %q on the request channel", msg.Type))
	}
}

// Callback invokes the callback every time as there's a piece of body available
// for reading. If the callback returns an error, it'll be passed back to the caller.
//
// Please note: this method can be used only once.
func (b *Body) Callback(cb BodyCallback) error {
	for {
		data, err := b.Retrieve()
		switch err {
		case nil:
		case io.EOF:
			return cb(data)
		default:
			return err
		}

		if err = cb(data); err != nil {
			return err
		}
	}
}

// Bytes returns the whole body at once in a byte representation.
func (b *Body) Bytes() ([]byte, error) {
	if len(b.buff) != 0 {
		return b.buff, nil
	}

	for {
		data, err := b.Retrieve()
		b.buff = append(b.buff, data...)
		switch err {
		case nil:
		case io.EOF:
			return b.buff, nil
		default:
			return nil, err
		}
	}
}

// String returns the whole body at once in a string representation.
func (b *Body) String() (string, error) {
	bytes, err := b.Bytes()
	return uf.B2S(bytes), err
}

// Read implements the io.Reader interface.
func (b *Body) Read(into []byte) (n int, err error) {
	// empty non-final messages are legal and carry no data to hand out
	for len(b.pending) == 0 {
		b.pending, err = b.Retrieve()
		if err != nil {
			return 0, err
		}
	}

	n = copy(into, b.pending)
	b.pending = b.pending[n:]

	return n, nil
}

// JSON convoys the request's body to a json unmarshaller automatically and
// behaves in a similar manner.
//
// Please note: this method cannot be used on requests with Content-Type
// incompatible with mime.JSON (in this case, status.ErrUnsupportedMedia is
// returned).
func (b *Body) JSON(model any) error {
	if !mime.Complies(mime.JSON, b.request.ContentType) {
		return status.ErrUnsupportedMedia
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard discards the rest of the body (if any). If no networking error was
// encountered, nil is returned.
func (b *Body) Discard() error {
	var err error
	for err == nil {
		_, err = b.Retrieve()
	}

	if err == io.EOF {
		return nil
	}

	return err
}

// Error returns a previously encountered terminal error, otherwise nil.
func (b *Body) Error() error {
	return b.error
}

func (b *Body) fail(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = status.ErrRequestTimeout
	case errors.Is(err, context.Canceled):
		err = status.ErrRequestAborted
	}

	b.error = err

	return err
}
