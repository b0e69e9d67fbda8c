package util

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
)

// DefaultBufSize is the standard buffer size for stream I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// BufPool provides reusable byte buffers for the copy loops that move
// video bytes around.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}

// Pump copies src into dst until src reaches EOF or ctx is cancelled.
// Each successful write is reported to onBytes (which may be nil).
// Cancellation closes src to unblock the pending read.
func Pump(ctx context.Context, dst io.Writer, src io.ReadCloser, onBytes func(int64)) (int64, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			src.Close()
		case <-done:
		}
	}()

	buf := GetBuf()
	defer PutBuf(buf)

	var total int64
	for {
		n, rerr := src.Read(*buf)
		if n > 0 {
			w, werr := dst.Write((*buf)[:n])
			total += int64(w)
			if onBytes != nil {
				onBytes(int64(w))
			}
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if IsHarmless(rerr) || ctx.Err() != nil {
				return total, nil
			}
			return total, rerr
		}
	}
}

// IsHarmless returns true for errors that are expected during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
