package analysis

import (
	"context"
	"io"
	"time"
)

const (
	// DefaultByteBudget bounds how much of any file is materialized for
	// extraction. There is no hard size rejection: larger files are read up
	// to the budget and flagged as truncated.
	DefaultByteBudget = 1 << 20 // 1 MiB

	defaultChunkSize = 32 * 1024
)

// Governor bounds extraction reads with a byte budget and an optional
// wall-clock budget. It keeps memory bounded regardless of the declared or
// actual file size.
type Governor struct {
	ByteBudget int64
	ChunkSize  int
	Timeout    time.Duration
}

// Gather reads src in bounded chunks until the byte budget, the time
// budget, or end of stream is reached. The truncated flag reports that
// unread bytes remained. A zero-byte stream is a valid empty read, not an
// error; err is non-nil only for a genuine mid-stream read failure, and the
// partial data is still returned alongside it.
//
// The returned data never exceeds the budget. When a stream claims to fit
// the budget but keeps going, detecting the lie costs one probe byte beyond
// it, so source consumption is bounded by budget+1; the probe byte is
// discarded, never analyzed.
func (g Governor) Gather(ctx context.Context, src io.Reader, declaredSize int64) (data []byte, truncated bool, err error) {
	budget := g.ByteBudget
	if budget <= 0 {
		budget = DefaultByteBudget
	}
	chunkSize := g.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if int64(chunkSize) > budget {
		chunkSize = int(budget)
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	buf := make([]byte, 0, chunkSize)
	chunk := make([]byte, chunkSize)
	var total int64

	for total < budget {
		if ctx.Err() != nil {
			// Time budget exhausted mid-read: partial result, not a failure.
			return buf, true, nil
		}
		want := int64(chunkSize)
		if remaining := budget - total; remaining < want {
			want = remaining
		}
		n, rerr := src.Read(chunk[:want])
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			total += int64(n)
		}
		if rerr == io.EOF {
			return buf, false, nil
		}
		if rerr != nil {
			return buf, true, rerr
		}
	}

	// Budget filled. An honestly declared larger file is truncated without
	// further reads; otherwise probe a single byte to detect streams that
	// outgrow their declared size.
	if declaredSize > budget {
		return buf, true, nil
	}
	n, rerr := src.Read(chunk[:1])
	if n > 0 {
		return buf, true, nil
	}
	if rerr != nil && rerr != io.EOF {
		return buf, true, rerr
	}
	return buf, false, nil
}
