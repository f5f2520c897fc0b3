package httpclient

import (
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// trackedBody wraps a response body handed to the caller. On Close, or
// when EOF is reached, it runs onClose once with the bytes read and ends
// the span, if any.
//
// The request context stays alive until then, so a body can be read after
// the call returns even when the call owned its cancellation.
type trackedBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	onClose func(bytesRead int64)
}

// newTrackedBody wraps body. span may be nil. A nil body is not wrapped;
// onClose runs immediately and span is ended.
func newTrackedBody(
	span trace.Span,
	body io.ReadCloser,
	onClose func(bytesRead int64),
) io.ReadCloser {
	tb := &trackedBody{
		span:    span,
		body:    body,
		onClose: onClose,
	}

	if body == nil {
		tb.finish()
		return nil
	}

	// Preserve io.ReadWriteCloser for protocol upgrade responses
	// (e.g., WebSocket upgrade where body implements io.Writer)
	if _, ok := body.(io.ReadWriteCloser); ok {
		return &readWriteCloserBody{trackedBody: tb}
	}

	return tb
}

// Read reads from the underlying body, tracking bytes and errors.
func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		b.finish()
	default:
		if b.span != nil {
			b.span.RecordError(err)
			b.span.SetStatus(codes.Error, err.Error())
		}
	}

	return n, err
}

// Close closes the underlying body and finishes tracking.
func (b *trackedBody) Close() error {
	err := b.body.Close()
	b.finish()
	return err
}

// finish runs onClose and ends the span exactly once.
func (b *trackedBody) finish() {
	if b.closed.CompareAndSwap(false, true) {
		if b.onClose != nil {
			b.onClose(b.read.Load())
		}
		if b.span != nil {
			b.span.End()
		}
	}
}

// readWriteCloserBody extends trackedBody for protocol upgrade responses
// that implement io.ReadWriteCloser (e.g., WebSocket).
type readWriteCloserBody struct {
	*trackedBody
}

var _ io.ReadWriteCloser = (*readWriteCloserBody)(nil)

// Write delegates to the underlying body's Write method.
func (b *readWriteCloserBody) Write(p []byte) (int, error) {
	writer, ok := b.body.(io.Writer)
	if !ok {
		return 0, io.ErrClosedPipe
	}

	n, err := writer.Write(p)
	if err != nil && b.span != nil {
		b.span.RecordError(err)
		b.span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}
