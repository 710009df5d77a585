package http

import "errors"

var ErrHandlersFrozen = errors.New("upload handlers cannot be replaced after parsing has started")
