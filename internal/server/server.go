package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/presence"
	"github.com/alfredjeanlab/metarev/internal/store"
)

// ActorHeader names the request header carrying the acting user.
const ActorHeader = "X-Metarev-Actor"

// defaultActor is used when a request does not name its actor.
const defaultActor = "anonymous"

// Server serves the JSON API and the HTML edit and revision screens.
type Server struct {
	content  *content.Service
	fields   *fields.Registry
	bus      *hooks.Bus
	stream   *eventStream
	validate *validator.Validate
	logger   *slog.Logger

	// Presence tracks who has a post open on the edit screen.
	Presence *presence.Tracker
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPresence replaces the default edit-lock tracker.
func WithPresence(t *presence.Tracker) Option {
	return func(s *Server) { s.Presence = t }
}

// New returns a Server for the given content service and field registry.
// When rec is non-nil every event it records is also sent to event stream
// clients.
func New(svc *content.Service, reg *fields.Registry, rec *events.Recorder, opts ...Option) *Server {
	s := &Server{
		content:  svc,
		fields:   reg,
		bus:      svc.Bus(),
		stream:   newEventStream(),
		validate: newValidator(),
		logger:   slog.Default(),
		Presence: presence.New(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if rec != nil {
		rec.AddBroadcaster(s.stream)
	}
	return s
}

// newValidator returns a validator with the post status rule registered.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("post_status", validatePostStatus); err != nil {
		panic(fmt.Sprintf("failed to register post_status validator: %v", err))
	}
	return v
}

func validatePostStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || model.Status(value).IsValid()
}

// request builds the lifecycle request of an HTTP request.
func (s *Server) request(r *http.Request, screen hooks.Screen, action string) hooks.Request {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		actor = defaultActor
	}
	return hooks.Request{
		Screen:    screen,
		Action:    action,
		Actor:     actor,
		RequestID: requestIDFrom(r.Context()),
	}
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var (
		ve  *model.ValidationError
		fve validator.ValidationErrors
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, content.ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, content.ErrRevisionReadOnly):
		return http.StatusConflict
	case errors.As(err, &ve), errors.As(err, &fve),
		errors.Is(err, content.ErrUnknownContentType),
		errors.Is(err, content.ErrNotRevision),
		errors.Is(err, content.ErrInvalidTaxonomy):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the status statusFor picks. Internal
// errors are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"err", err)
		writeError(w, code, "internal server error")
		return
	}
	var fve validator.ValidationErrors
	if errors.As(err, &fve) && len(fve) > 0 {
		writeError(w, code, "validation failed: "+fve[0].Error())
		return
	}
	writeError(w, code, err.Error())
}
