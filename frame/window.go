package frame

import (
	"sync"

	"github.com/go-logr/logr"
)

// Event is one delivered message. Origin is the sender's origin as seen by
// the receiver and cannot be forged by the sender.
type Event struct {
	Origin  string
	Source  *Window
	Message Message
}

// Listener receives events on the window's mailbox goroutine.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Window is a message endpoint with a fixed origin.
type Window struct {
	origin string
	log    logr.Logger

	mu        sync.Mutex
	parent    *Window
	frames    map[string]*Window
	listeners []listenerEntry
	nextID    uint64
	queue     []Event
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// NewWindow starts a window's mailbox. Close stops it.
func NewWindow(origin string, logger logr.Logger) *Window {
	w := &Window{
		origin: origin,
		log:    logger.WithValues("origin", origin),
		frames: make(map[string]*Window),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Window) Origin() string { return w.origin }

// Parent returns the embedding window, or nil for a top-level window.
func (w *Window) Parent() *Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parent
}

// Embed makes child a frame of w under name, replacing any previous frame.
func (w *Window) Embed(name string, child *Window) {
	w.mu.Lock()
	w.frames[name] = child
	w.mu.Unlock()

	child.mu.Lock()
	child.parent = w
	child.mu.Unlock()
}

// Unembed removes the frame registered under name.
func (w *Window) Unembed(name string) {
	w.mu.Lock()
	child := w.frames[name]
	delete(w.frames, name)
	w.mu.Unlock()

	if child != nil {
		child.mu.Lock()
		if child.parent == w {
			child.parent = nil
		}
		child.mu.Unlock()
	}
}

// Frame looks up an embedded window by name.
func (w *Window) Frame(name string) (*Window, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.frames[name]
	return f, ok && f != nil
}

// AddListener registers fn and returns a func that removes it. The remover
// is idempotent.
func (w *Window) AddListener(fn Listener) (remove func()) {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.listeners = append(w.listeners, listenerEntry{id: id, fn: fn})
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			for i, l := range w.listeners {
				if l.id == id {
					w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// PostMessage queues msg for delivery to w's listeners. It reports whether
// the message was accepted: a target origin other than AnyOrigin or w's own
// origin, a nil sender, or a closed window drops it silently.
func (w *Window) PostMessage(from *Window, msg Message, targetOrigin string) bool {
	if from == nil {
		return false
	}
	if targetOrigin != AnyOrigin && targetOrigin != w.origin {
		w.log.V(2).Info("dropped message for other origin", "target", targetOrigin, "api", msg.APIName)
		return false
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, Event{Origin: from.origin, Source: from, Message: msg.clone()})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops delivery. Queued events are discarded.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.queue = nil
	close(w.done)
}

func (w *Window) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for {
			ev, listeners, ok := w.next()
			if !ok {
				break
			}
			for _, l := range listeners {
				w.deliver(l, ev)
			}
		}
	}
}

func (w *Window) next() (Event, []listenerEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || len(w.queue) == 0 {
		return Event{}, nil, false
	}
	ev := w.queue[0]
	w.queue[0] = Event{}
	w.queue = w.queue[1:]
	listeners := make([]listenerEntry, len(w.listeners))
	copy(listeners, w.listeners)
	return ev, listeners, true
}

func (w *Window) deliver(l listenerEntry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Info("listener panicked", "api", ev.Message.APIName, "panic", r)
		}
	}()
	l.fn(ev)
}
