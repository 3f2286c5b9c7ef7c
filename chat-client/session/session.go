// Package session holds the chat view-model: the connection handle, the
// bound input fields, the rendered transcript and the joined flag.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/gosuda/portal-chat/chat-client/render"
)

var (
	ErrNameRequired    = errors.New("session: username required")
	ErrAlreadyJoined   = errors.New("session: already joined")
	ErrNotJoined       = errors.New("session: not joined")
	ErrMalformedRecord = errors.New("session: malformed record")
)

const (
	// NameRequiredNotice is shown when join is attempted without a name.
	NameRequiredNotice = "You must choose a username"
	NoticeDuration     = 2 * time.Second
)

// Record is the wire message exchanged with the chat server in both
// directions.
type Record struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Sender writes one JSON record to the connection. *websocket.Conn and
// *wsconn.Conn satisfy it.
type Sender interface {
	WriteJSON(v any) error
}

// Notifier shows a transient notice to the user.
type Notifier interface {
	Notify(text string, d time.Duration)
}

// Observer is told about state changes the presentation layer reacts to,
// such as scrolling the message list after an append.
type Observer interface {
	Appended(seq uint64, fragment template.HTML)
	Joined(username string)
}

type Option func(*Session)

func WithRenderer(r *render.Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithTranscriptLimit caps the transcript; 0 keeps every fragment.
func WithTranscriptLimit(n int) Option {
	return func(s *Session) { s.transcript = NewTranscript(n) }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// Session is the single chat view-model for the process. All methods are
// safe for concurrent use. State changes are applied one at a time; the
// connection write in Send runs outside the lock so inbound frames keep
// flowing while it is in progress.
type Session struct {
	mu          sync.Mutex
	conn        Sender
	renderer    *render.Renderer
	transcript  *Transcript
	notifier    Notifier
	observer    Observer
	draft       string
	displayName string
	joined      bool
}

// New returns a Session bound to conn. The connection is never replaced or
// closed by the Session.
func New(conn Sender, opts ...Option) *Session {
	s := &Session{
		conn:       conn,
		renderer:   render.NewRenderer(),
		transcript: NewTranscript(DefaultTranscriptLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDisplayName binds the name input. It is ignored once joined.
func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	if !s.joined {
		s.displayName = name
	}
	s.mu.Unlock()
}

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// Transcript returns the rendered fragments in arrival order.
func (s *Session) Transcript() []template.HTML {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Snapshot()
}

// Backlog returns the transcript together with the sequence number of its
// newest fragment, as reported to Observer.Appended.
func (s *Session) Backlog() ([]template.HTML, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Snapshot(), s.transcript.Seq()
}

// Receive handles one inbound payload. A payload that is not a JSON record
// yields an error wrapping ErrMalformedRecord and leaves the transcript as is.
func (s *Session) Receive(payload []byte) (template.HTML, error) {
	var rec *Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec == nil {
		return "", fmt.Errorf("%w: null payload", ErrMalformedRecord)
	}

	s.mu.Lock()
	fragment := s.renderer.Fragment(rec.Username, rec.Message)
	s.transcript.Append(fragment)
	seq, observer := s.transcript.Seq(), s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.Appended(seq, fragment)
	}
	return fragment, nil
}

// Send strips markup from the draft and writes it as one record. A blank
// draft is a no-op. The draft is cleared only when the write succeeds and the
// draft was not rebound meanwhile.
func (s *Session) Send() error {
	s.mu.Lock()
	draft := s.draft
	if strings.TrimSpace(draft) == "" {
		s.mu.Unlock()
		return nil
	}
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	rec := Record{Username: s.displayName, Message: render.StripMarkup(draft)}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.WriteJSON(rec); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	if s.draft == draft {
		s.draft = ""
	}
	s.mu.Unlock()
	return nil
}

// Join commits the bound display name. An empty name raises a notice and
// returns ErrNameRequired without changing state.
func (s *Session) Join() error {
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	if s.displayName == "" {
		notifier := s.notifier
		s.mu.Unlock()
		if notifier != nil {
			notifier.Notify(NameRequiredNotice, NoticeDuration)
		}
		return ErrNameRequired
	}
	s.displayName = render.StripMarkup(s.displayName)
	s.joined = true
	name, observer := s.displayName, s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.Joined(name)
	}
	return nil
}
