package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [<post-id>...]",
	Short: "Follow post and revision events as they happen",
	Long: `Follow post and revision events as they happen.

Events come from NATS when a NATS URL is configured (--nats,
METAREV_NATS_URL or the active remote), otherwise from the server's
event stream. Giving post ids limits the output to those posts.`,
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		var ids []int64
		posts := make(map[int64]bool, len(args))
		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			posts[id] = true
		}
		topics, _ := cmd.Flags().GetStringSlice("topics")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		w := cmd.OutOrStdout()
		emit := func(topic string, data []byte) {
			line, ok := formatEvent(topic, data, posts)
			if !ok {
				return
			}
			if jsonOutput {
				fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", topic, data)
				return
			}
			fmt.Fprintln(w, line)
		}

		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = currentRemote().NATSURL
		}
		if natsURL != "" {
			return watchNATS(ctx, natsURL, topics, emit)
		}
		return watchStream(ctx, metarevClient, client.StreamFilter{Topics: topics, Posts: ids}, emit)
	},
}

// watchNATS subscribes to each topic pattern on NATS and emits events as
// they arrive.
func watchNATS(ctx context.Context, natsURL string, topics []string, emit func(string, []byte)) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	merged := make(chan *model.Event, 64)
	for _, pattern := range natsPatterns(topics) {
		ch, cancel, err := sub.Subscribe(pattern)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()
		go func() {
			for evt := range ch {
				select {
				case merged <- evt:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-merged:
			emit(evt.Topic, evt.Payload)
		}
	}
}

// watchStream follows the server's event stream, reconnecting from the
// last seen event when the connection drops.
func watchStream(ctx context.Context, c client.MetarevClient, filter client.StreamFilter, emit func(string, []byte)) error {
	var lastID uint64
	backoff := time.Second
	for {
		err := c.StreamEvents(ctx, filter, lastID, func(evt client.StreamEvent) error {
			lastID = evt.ID
			backoff = time.Second
			emit(evt.Topic, evt.Data)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("event stream: %v (retrying in %s)", err, backoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// natsPatterns returns the subject patterns to subscribe to, without
// duplicates. No filters means every metarev topic.
func natsPatterns(filters []string) []string {
	if len(filters) == 0 {
		return []string{"metarev.>"}
	}
	var out []string
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// eventPostID extracts the post an event payload is about.
func eventPostID(data []byte) int64 {
	var p struct {
		PostID int64 `json:"post_id"`
		Post   *struct {
			ID int64 `json:"id"`
		} `json:"post"`
	}
	if json.Unmarshal(data, &p) != nil {
		return 0
	}
	if p.PostID != 0 {
		return p.PostID
	}
	if p.Post != nil {
		return p.Post.ID
	}
	return 0
}

// formatEvent renders one event as a single line. It reports false when
// posts is non-empty and the event is about another post.
func formatEvent(topic string, data []byte, posts map[int64]bool) (string, bool) {
	postID := eventPostID(data)
	if len(posts) > 0 && !posts[postID] {
		return "", false
	}

	var detail string
	switch topic {
	case events.TopicRevisionCreated, events.TopicRevisionRestored:
		var e events.RevisionCreated
		if json.Unmarshal(data, &e) == nil {
			detail = fmt.Sprintf("revision %d", e.RevisionID)
			if tracked := slices.Concat(e.MetaKeys, e.Taxonomies); len(tracked) > 0 {
				detail += " [" + strings.Join(tracked, ", ") + "]"
			}
		}
	case events.TopicPostUpdated:
		var e struct {
			Changes map[string]json.RawMessage `json:"changes"`
			Screen  string                     `json:"screen"`
		}
		if json.Unmarshal(data, &e) == nil {
			detail = strings.Join(sortedKeys(e.Changes), ", ")
			if e.Screen != "" {
				detail += " via " + e.Screen
			}
		}
	case events.TopicFieldRegistered:
		var e events.FieldRegistered
		if json.Unmarshal(data, &e) == nil {
			detail = fmt.Sprintf("%s %s on %s", e.Field.Kind, e.Field.Name, e.Field.ContentType)
		}
	}

	line := fmt.Sprintf("%s %s", ui.RenderMuted(time.Now().Format("15:04:05")), ui.RenderAccent(topic))
	if postID != 0 {
		line += fmt.Sprintf(" post=%d", postID)
	}
	if detail != "" {
		line += " " + detail
	}
	return line, true
}

func init() {
	watchCmd.Flags().StringSlice("topics", nil, "topic patterns to follow, e.g. metarev.revision.* (default all)")
	watchCmd.Flags().String("nats", os.Getenv("METAREV_NATS_URL"), "NATS URL to follow instead of the server stream")
}
