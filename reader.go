package courier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/synqronlabs/courier/wire"
)

const readChunkSize = 4096

type readResult struct {
	data []byte
	err  error
}

// replyReader accumulates transport reads into complete reply blocks.
//
// A read is only started while a reply is awaited. When the timer or the
// context wins the race against an outstanding read, that read is left
// pending and its result is consumed by the next ReadReply, so no bytes are
// lost and no second read is ever issued on the same stream.
type replyReader struct {
	src     io.Reader
	buf     []byte
	pending chan readResult
}

func newReplyReader(src io.Reader) *replyReader {
	return &replyReader{src: src}
}

// ReadReply returns the next complete reply block, including all
// continuation lines and their line terminators.
func (r *replyReader) ReadReply(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for !wire.ReplyComplete(string(r.buf)) {
		if r.pending == nil {
			r.pending = r.startRead()
		}

		select {
		case res := <-r.pending:
			r.pending = nil
			r.buf = append(r.buf, res.data...)
			if res.err != nil && !wire.ReplyComplete(string(r.buf)) {
				if errors.Is(res.err, io.EOF) {
					return "", fmt.Errorf("%w: connection closed while awaiting reply", ErrUnexpectedResponse)
				}
				return "", fmt.Errorf("read reply: %w", res.err)
			}
		case <-expired:
			return "", fmt.Errorf("%w: no reply within %s", ErrTimeout, timeout)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			}
			return "", ctx.Err()
		}
	}

	reply := string(r.buf)
	r.buf = r.buf[:0]
	return reply, nil
}

func (r *replyReader) startRead() chan readResult {
	ch := make(chan readResult, 1)
	go func() {
		chunk := make([]byte, readChunkSize)
		n, err := r.src.Read(chunk)
		ch <- readResult{data: chunk[:n], err: err}
	}()
	return ch
}
