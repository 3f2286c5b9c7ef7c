package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat-client/session"
)

const subscriberBuffer = 64

// uiEvent is one server-sent event pushed to open pages. Seq is set on
// message events only.
type uiEvent struct {
	Name string
	Seq  uint64
	Data any
}

// subscriber is one open page. lagged is set when an event had to be dropped
// because the page fell behind; the stream then resyncs the page.
type subscriber struct {
	ch     chan uiEvent
	lagged atomic.Bool
}

// broker fans session changes out to every open page. It is the Notifier and
// Observer the session reports to.
type broker struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func newBroker() *broker {
	return &broker{subs: map[string]*subscriber{}}
}

func (b *broker) subscribe() (string, *subscriber) {
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan uiEvent, subscriberBuffer)}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return id, sub
}

func (b *broker) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *broker) publish(ev uiEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged.Store(true)
			log.Debug().Str("subscriber", id).Str("event", ev.Name).Msg("[view] page lagging, drop event")
		}
	}
}

func (b *broker) Notify(text string, d time.Duration) {
	b.publish(uiEvent{Name: "toast", Data: struct {
		Text string `json:"text"`
		MS   int64  `json:"ms"`
	}{text, d.Milliseconds()}})
}

func (b *broker) Appended(seq uint64, fragment template.HTML) {
	b.publish(uiEvent{Name: "message", Seq: seq, Data: string(fragment)})
}

func (b *broker) Joined(username string) {
	b.publish(uiEvent{Name: "joined", Data: struct {
		Username string `json:"username"`
	}{username}})
}

// view serves the chat page bound to one session.
type view struct {
	name   string
	sess   *session.Session
	events *broker

	// actions runs bind-then-act pairs one at a time, like a UI event loop.
	actions sync.Mutex
}

// NewHandler builds the chat UI router (page, actions and event stream).
func NewHandler(name string, sess *session.Session, events *broker) http.Handler {
	v := &view{name: name, sess: sess, events: events}
	r := chi.NewRouter()
	r.Get("/", v.serveIndex)
	r.Post("/join", v.handleJoin)
	r.Post("/send", v.handleSend)
	r.Get("/events", v.handleEvents)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (v *view) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Name        string
		Joined      bool
		DisplayName string
		Draft       string
		Transcript  []template.HTML
	}{
		Name:        v.name,
		Joined:      v.sess.Joined(),
		DisplayName: v.sess.DisplayName(),
		Draft:       v.sess.Draft(),
		Transcript:  v.sess.Transcript(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Debug().Err(err).Msg("[view] render index")
	}
}

func (v *view) handleJoin(w http.ResponseWriter, r *http.Request) {
	v.actions.Lock()
	v.sess.SetDisplayName(r.FormValue("username"))
	err := v.sess.Join()
	v.actions.Unlock()

	switch {
	case err == nil:
		log.Info().Str("user", v.sess.DisplayName()).Msg("[chat] joined")
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrNameRequired):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, session.ErrAlreadyJoined):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (v *view) handleSend(w http.ResponseWriter, r *http.Request) {
	v.actions.Lock()
	v.sess.SetDraft(r.FormValue("message"))
	err := v.sess.Send()
	v.actions.Unlock()

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrNotJoined):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Warn().Err(err).Msg("[chat] send failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

// syncState is the full page state sent when a stream attaches or resyncs.
type syncState struct {
	Joined   bool     `json:"joined"`
	Username string   `json:"username"`
	Messages []string `json:"messages"`
}

// syncEvent snapshots the session. Message events at or below the returned
// sequence number are already part of the snapshot.
func (v *view) syncEvent() (uiEvent, uint64) {
	items, seq := v.sess.Backlog()
	messages := make([]string, len(items))
	for i, f := range items {
		messages[i] = string(f)
	}
	return uiEvent{Name: "sync", Data: syncState{
		Joined:   v.sess.Joined(),
		Username: v.sess.DisplayName(),
		Messages: messages,
	}}, seq
}

func (v *view) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before the snapshot so nothing appended in between is lost.
	id, sub := v.events.subscribe()
	defer v.events.unsubscribe(id)
	log.Debug().Str("subscriber", id).Msg("[view] page attached")

	resync := func() (uint64, error) {
		ev, seq := v.syncEvent()
		if err := writeEvent(w, ev); err != nil {
			return 0, err
		}
		flusher.Flush()
		return seq, nil
	}
	seen, err := resync()
	if err != nil {
		log.Debug().Err(err).Str("subscriber", id).Msg("[view] write sync")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("subscriber", id).Msg("[view] page detached")
			return
		case ev := <-sub.ch:
			if sub.lagged.Swap(false) {
				if seen, err = resync(); err != nil {
					log.Debug().Err(err).Str("subscriber", id).Msg("[view] write sync")
					return
				}
			}
			if ev.Name == "message" {
				if ev.Seq <= seen {
					continue
				}
				seen = ev.Seq
			}
			if err := writeEvent(w, ev); err != nil {
				log.Debug().Err(err).Str("subscriber", id).Msg("[view] write event")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev uiEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

var indexTmpl = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Chat — {{.Name}}</title>
  <style>
    :root{ --bg:#0d1117; --panel:#111827; --border:#1f2937; --fg:#e5e7eb; --muted:#9ca3af; --accent:#22c55e }
    *{ box-sizing:border-box }
    body{ margin:0; padding:24px; background:var(--bg); color:var(--fg); font-family:ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial }
    .wrap{ max-width:920px; margin:0 auto }
    h1{ margin:0 0 12px 0; font-weight:700 }
    .card{ border:1px solid var(--border); border-radius:10px; background:var(--panel); overflow:hidden }
    #chat-messages{ height:420px; overflow:auto; padding:14px; line-height:1.6 }
    .chip{ display:inline-flex; align-items:center; gap:6px; padding:2px 10px 2px 2px; margin:4px 8px 4px 0; border:1px solid var(--border); border-radius:999px; font-size:13px }
    .chip img{ width:24px; height:24px; border-radius:50% }
    img.emojione{ width:20px; height:20px; vertical-align:middle }
    .row{ display:flex; gap:8px; padding:12px 14px; border-top:1px solid var(--border) }
    .row input{ flex:1 1 auto; min-width:0; background:transparent; border:1px solid var(--border); color:var(--fg); padding:8px; border-radius:6px; font-size:14px }
    .row button{ background:transparent; border:1px solid var(--border); color:var(--accent); padding:8px 14px; border-radius:6px; cursor:pointer }
    .hide, [hidden]{ display:none !important }
    #toast{ position:fixed; left:50%; bottom:24px; transform:translateX(-50%); background:#374151; color:var(--fg); padding:10px 18px; border-radius:6px }
  </style>
</head>
<body>
  <div class="wrap">
    <h1>Chat — {{.Name}}</h1>
    <div class="card">
      <div id="chat-messages">{{range .Transcript}}{{.}}{{end}}</div>
      <form id="send-form" class="row{{if not .Joined}} hide{{end}}">
        <input id="message" name="message" type="text" autocomplete="off" value="{{.Draft}}" placeholder="type a message and press Enter" />
        <button type="submit">Send</button>
      </form>
      <form id="join-form" class="row{{if .Joined}} hide{{end}}">
        <input id="username" name="username" type="text" value="{{.DisplayName}}" placeholder="Username" />
        <button type="submit">Join</button>
      </form>
    </div>
  </div>
  <div id="toast" hidden></div>
  <script>
    const messages = document.getElementById('chat-messages');
    const sendForm = document.getElementById('send-form');
    const joinForm = document.getElementById('join-form');
    const input = document.getElementById('message');
    const toast = document.getElementById('toast');
    let toastTimer = null;
    const base = location.pathname.endsWith('/') ? location.pathname : (location.pathname + '/');

    function scrollBottom(){ if (messages) messages.scrollTop = messages.scrollHeight; }
    function post(path, form){
      return fetch(base + path, { method: 'POST', body: new URLSearchParams(new FormData(form)) });
    }
    sendForm.addEventListener('submit', async e => {
      e.preventDefault();
      const res = await post('send', sendForm);
      if (res.ok) input.value = '';
    });
    joinForm.addEventListener('submit', e => { e.preventDefault(); post('join', joinForm); });

    const events = new EventSource(base + 'events');
    events.addEventListener('message', e => {
      messages.insertAdjacentHTML('beforeend', JSON.parse(e.data));
      scrollBottom();
    });
    function showJoined(){
      joinForm.classList.add('hide');
      sendForm.classList.remove('hide');
    }
    events.addEventListener('sync', e => {
      const s = JSON.parse(e.data);
      messages.innerHTML = s.messages.join('');
      if (s.joined) showJoined();
      scrollBottom();
    });
    events.addEventListener('joined', () => { showJoined(); input.focus(); });
    events.addEventListener('toast', e => {
      const t = JSON.parse(e.data);
      toast.textContent = t.text;
      toast.hidden = false;
      clearTimeout(toastTimer);
      toastTimer = setTimeout(() => { toast.hidden = true; }, t.ms);
    });
    scrollBottom();
  </script>
</body>
</html>`))
