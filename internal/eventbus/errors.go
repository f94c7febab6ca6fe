package eventbus

import "errors"

// ErrBufferFull is returned by Publish when the bus's internal buffer has
// no room and the publish would otherwise block. Use errors.Is to check.
var ErrBufferFull = errors.New("eventbus: buffer full")

// ErrClosed is returned by Publish/Subscribe after Close has been called.
var ErrClosed = errors.New("eventbus: closed")
