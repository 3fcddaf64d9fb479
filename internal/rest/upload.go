package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/protocol"
)

// progressReader reports the share of bytes read in percent.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress attachment.ProgressFunc
	mu         sync.Mutex
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.onProgress != nil && p.total > 0 {
		p.mu.Lock()
		p.read += int64(n)
		percent := float64(p.read) * 100 / float64(p.total)
		p.mu.Unlock()
		p.onProgress(percent)
	}
	return n, err
}

func newProgressReader(data []byte, onProgress attachment.ProgressFunc) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), onProgress: onProgress}
}

// Upload PUTs data to a presigned URL with the headers the gateway signed.
// A cancelled ctx yields an errcode.CancellationError.
func (c *Client) Upload(ctx context.Context, presigned protocol.PresignedURLResponse, data []byte, onProgress attachment.ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.URL, newProgressReader(data, onProgress))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(newProgressReader(data, onProgress)), nil
	}
	for k, v := range presigned.Headers {
		req.Header.Set(k, v)
	}

	if err := c.do(c.upload, req, nil); err != nil {
		if ctx.Err() != nil {
			return errcode.Canceled(ctx.Err())
		}
		return err
	}
	return nil
}

var _ attachment.Uploader = (*Client)(nil)
