package server

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/model"
)

const (
	// streamBacklog is how many recent events a reconnecting client can
	// resume from.
	streamBacklog = 1000

	streamKeepalive    = 15 * time.Second
	streamClientBuffer = 64
)

// streamEvent is one event as sent on /v1/events/stream.
type streamEvent struct {
	Seq    uint64
	Topic  string
	PostID int64
	Data   []byte
}

// streamFilter selects the events a stream client sees. Zero values match
// everything.
type streamFilter struct {
	topics []string
	posts  map[int64]bool
}

func (f streamFilter) match(evt *streamEvent) bool {
	if len(f.posts) > 0 && !f.posts[evt.PostID] {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	return slices.ContainsFunc(f.topics, func(p string) bool {
		return matchTopicPattern(p, evt.Topic)
	})
}

// parseStreamFilter reads the topics= and post= query values. Both take
// comma-separated lists.
func parseStreamFilter(r *http.Request) (streamFilter, error) {
	var f streamFilter
	q := r.URL.Query()
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if !slices.ContainsFunc(events.Topics, func(topic string) bool { return matchTopicPattern(t, topic) }) {
			return f, fmt.Errorf("topic %q matches no event", t)
		}
		f.topics = append(f.topics, t)
	}
	for _, raw := range strings.Split(q.Get("post"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("invalid post %q", raw)
		}
		if f.posts == nil {
			f.posts = make(map[int64]bool)
		}
		f.posts[id] = true
	}
	return f, nil
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" matches one segment, a trailing ">" one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	segs := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(segs)
		}
		if i >= len(segs) || (p != "*" && p != segs[i]) {
			return false
		}
	}
	return len(pat) == len(segs)
}

// eventStream fans recorded events out to stream clients and keeps a
// backlog so a client can resume after a dropped connection.
type eventStream struct {
	mu      sync.Mutex
	seq     uint64
	backlog []*streamEvent // oldest first
	subs    map[*streamSub]struct{}
}

type streamSub struct {
	filter streamFilter
	ch     chan *streamEvent
}

func newEventStream() *eventStream {
	return &eventStream{subs: make(map[*streamSub]struct{})}
}

// Broadcast implements events.Broadcaster.
func (s *eventStream) Broadcast(event *model.Event) {
	s.publish(event.Topic, event.PostID, event.Payload)
}

func (s *eventStream) publish(topic string, postID int64, data []byte) *streamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	evt := &streamEvent{Seq: s.seq, Topic: topic, PostID: postID, Data: data}
	s.backlog = append(s.backlog, evt)
	if len(s.backlog) > streamBacklog {
		s.backlog = s.backlog[len(s.backlog)-streamBacklog:]
	}

	for sub := range s.subs {
		if !sub.filter.match(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Slow clients lose events; they can resume with Last-Event-ID.
		}
	}
	return evt
}

// subscribe registers a client. When resume is set, the matching backlog
// after lastSeq is returned in the same critical section, so no event is
// both replayed and delivered.
func (s *eventStream) subscribe(filter streamFilter, resume bool, lastSeq uint64) (*streamSub, []*streamEvent) {
	sub := &streamSub{filter: filter, ch: make(chan *streamEvent, streamClientBuffer)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
	if !resume {
		return sub, nil
	}
	var replay []*streamEvent
	for _, evt := range s.since(lastSeq) {
		if filter.match(evt) {
			replay = append(replay, evt)
		}
	}
	return sub, replay
}

func (s *eventStream) unsubscribe(sub *streamSub) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// since returns the backlog after lastSeq. Callers hold s.mu.
func (s *eventStream) since(lastSeq uint64) []*streamEvent {
	i := sort.Search(len(s.backlog), func(i int) bool { return s.backlog[i].Seq > lastSeq })
	return slices.Clone(s.backlog[i:])
}

// eventsSince returns the buffered events after lastSeq, oldest first.
func (s *eventStream) eventsSince(lastSeq uint64) []*streamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since(lastSeq)
}

func writeStreamEvent(w io.Writer, evt *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.Seq, evt.Topic, evt.Data)
}

// handleEventStream handles GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	filter, err := parseStreamFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var lastSeq uint64
	resume := false
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if lastSeq, err = strconv.ParseUint(raw, 10, 64); err == nil {
			resume = true
		}
	}

	sub, replay := s.stream.subscribe(filter, resume, lastSeq)
	defer s.stream.unsubscribe(sub)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range replay {
		writeStreamEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-sub.ch:
			writeStreamEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			io.WriteString(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}
