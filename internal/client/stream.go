package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// StreamEvent is one event read from the server's event stream.
type StreamEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// StreamFilter narrows an event stream. Empty fields match everything.
type StreamFilter struct {
	Topics []string // patterns such as "metarev.revision.*"
	Posts  []int64
}

func (f StreamFilter) query() string {
	q := make(url.Values)
	if len(f.Topics) > 0 {
		q.Set("topics", strings.Join(f.Topics, ","))
	}
	if len(f.Posts) > 0 {
		ids := make([]string, len(f.Posts))
		for i, id := range f.Posts {
			ids[i] = strconv.FormatInt(id, 10)
		}
		q.Set("post", strings.Join(ids, ","))
	}
	return q.Encode()
}

// StreamEvents follows GET /v1/events/stream and calls fn for every event
// the filter lets through. It returns when ctx is done, the server closes
// the stream, or fn returns an error. lastID resumes after a previously
// seen event id when non-zero.
func (c *HTTPClient) StreamEvents(ctx context.Context, filter StreamFilter, lastID uint64, fn func(StreamEvent) error) error {
	path := "/v1/events/stream"
	if q := filter.query(); q != "" {
		path += "?" + q
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(lastID, 10))
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}

	err = readSSE(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE parses a text/event-stream body. Comment lines are skipped;
// a blank line dispatches the pending event.
func readSSE(r io.Reader, fn func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		evt  StreamEvent
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if evt.Topic != "" || len(data) > 0 {
				evt.Data = []byte(strings.Join(data, "\n"))
				if err := fn(evt); err != nil {
					return err
				}
			}
			evt, data = StreamEvent{}, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			evt.ID, _ = strconv.ParseUint(strings.TrimSpace(line[3:]), 10, 64)
		case strings.HasPrefix(line, "event:"):
			evt.Topic = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(line[5:], " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
