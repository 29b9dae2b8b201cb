package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"

	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/log"
)

// HTTPChannel posts a multipart body to the service's create endpoint.
// The file is streamed, never buffered whole.
type HTTPChannel struct {
	Client *api.Client

	// Step is the minimum number of bytes between two Progress events.
	// Zero means one percent of the body.
	Step int64
}

// NewHTTPChannel returns a channel backed by client.
func NewHTTPChannel(client *api.Client) *HTTPChannel {
	return &HTTPChannel{Client: client}
}

func (h *HTTPChannel) Open(ctx context.Context, src *filesystem.Upload, meta Metadata) <-chan Event {
	events := make(chan Event, 1)
	r := &reporter{ctx: ctx, events: events}

	go func() {
		defer close(events)

		body, contentType, total, err := multipartBody(src, meta)
		if err != nil {
			r.finish(Failed{Err: err})
			return
		}

		step := h.Step
		if step <= 0 {
			step = max(total/100, 1)
		}

		counted := &countingReader{r: body, total: total, step: step, report: r}
		r.emit(Progress{Sent: 0, Total: total})

		rec, err := h.Client.Create(ctx, counted, contentType, total)
		if err != nil {
			log.WithFields(log.Fields{"file": src.Name, "size": src.Size}).Warnf("upload failed: %s", err)
			r.finish(Failed{Err: err})
			return
		}

		r.finish(Done{Record: rec})
	}()

	return events
}

// multipartBody lays out title, description and file parts with an exact length.
func multipartBody(src *filesystem.Upload, meta Metadata) (io.Reader, string, int64, error) {
	var head bytes.Buffer
	mw := multipart.NewWriter(&head)

	if err := mw.WriteField("title", meta.Title); err != nil {
		return nil, "", 0, err
	}
	if meta.Description != nil {
		if err := mw.WriteField("description", *meta.Description); err != nil {
			return nil, "", 0, err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, src.Name))
	header.Set("Content-Type", src.MediaType)
	if _, err := mw.CreatePart(header); err != nil {
		return nil, "", 0, err
	}

	// matches what multipart.Writer.Close writes after the last part
	tail := "\r\n--" + mw.Boundary() + "--\r\n"

	total := int64(head.Len()) + src.Size + int64(len(tail))
	body := io.MultiReader(&head, io.LimitReader(src, src.Size), strings.NewReader(tail))
	return body, mw.FormDataContentType(), total, nil
}

// reporter serialises event delivery and drops progress that arrives after the terminal event.
type reporter struct {
	ctx    context.Context
	events chan<- Event

	mu       sync.Mutex
	finished bool
	last     int64
}

func (r *reporter) emit(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || p.Sent < r.last {
		return
	}
	r.last = p.Sent

	select {
	case r.events <- p:
	case <-r.ctx.Done():
	}
}

func (r *reporter) finish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.finished = true

	select {
	case r.events <- e:
	case <-r.ctx.Done():
		// the consumer is gone but a buffered slot may still take it
		select {
		case r.events <- e:
		default:
		}
	}
}

type countingReader struct {
	r      io.Reader
	sent   int64
	total  int64
	step   int64
	mark   int64
	report *reporter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.sent += int64(n)

	if c.sent-c.mark >= c.step || (c.sent == c.total && c.mark != c.total) {
		c.mark = c.sent
		c.report.emit(Progress{Sent: c.sent, Total: c.total})
	}
	return n, err
}
