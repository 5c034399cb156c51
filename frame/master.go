package frame

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// FramePrefix is prepended to an app name to find its embedded frame.
const FramePrefix = "app-window-"

// DefaultMaxChildren bounds the master's registry when MasterOptions leaves it unset.
const DefaultMaxChildren = 64

// Request is what a Handler sees of an inbound child message.
type Request struct {
	AppKey  string
	AppName string
	Origin  string
	Data    json.RawMessage
}

// Handler answers one API. The returned value is marshaled into the reply's
// data. Errors are reported to the child as a generic failure.
type Handler func(ctx context.Context, req Request) (interface{}, error)

// Registration is one connected child.
type Registration struct {
	AppKey       string
	AppName      string
	ClientOrigin string
	Location     string
	ConnectedAt  time.Time

	frame *Window
}

type MasterOptions struct {
	MaxChildren    int
	HandlerTimeout time.Duration
	Logger         logr.Logger
}

// Master is the trust anchor of the desktop.
type Master struct {
	win  *Window
	opts MasterOptions
	log  logr.Logger

	mu       sync.RWMutex
	children map[string]Registration
	handlers map[APIName]Handler
	session  *SessionObject
	closed   bool

	remove func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMaster starts listening on win. USER_GETINFO and MASTER_INIT are
// answered from the current session unless overridden with Handle.
func NewMaster(win *Window, opts MasterOptions) *Master {
	if opts.MaxChildren <= 0 {
		opts.MaxChildren = DefaultMaxChildren
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Master{
		win:      win,
		opts:     opts,
		log:      opts.Logger.WithName("master"),
		children: make(map[string]Registration),
		handlers: make(map[APIName]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.handlers[APIGetUserInfo] = func(context.Context, Request) (interface{}, error) {
		s, ok := m.Session()
		if !ok {
			return nil, ErrNoSession
		}
		return s.User, nil
	}
	m.handlers[APIMasterInit] = func(context.Context, Request) (interface{}, error) {
		s, ok := m.Session()
		if !ok {
			return nil, ErrNoSession
		}
		return s, nil
	}
	m.remove = win.AddListener(m.onMessage)
	return m
}

// Handle registers h for api, replacing any existing handler. The handshake
// APIs cannot be overridden.
func (m *Master) Handle(api APIName, h Handler) error {
	if api == APIConnect || api == APIDisconnect {
		return errors.New("frame: handshake api is reserved")
	}
	if h == nil {
		return errors.New("frame: nil handler")
	}
	m.mu.Lock()
	m.handlers[api] = h
	m.mu.Unlock()
	return nil
}

// SetSession stores s and pushes MASTER_INIT to every registered child.
func (m *Master) SetSession(s SessionObject) {
	m.mu.Lock()
	m.session = &s
	regs := m.snapshotLocked()
	m.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		m.log.Error(err, "encode session")
		return
	}
	for _, reg := range regs {
		reg.frame.PostMessage(m.win, Message{
			APIName: APIMasterInit,
			AppKey:  reg.AppKey,
			AppName: reg.AppName,
			Data:    data,
		}, reg.ClientOrigin)
	}
}

// ClearSession drops the session, e.g. on logout.
func (m *Master) ClearSession() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// Session returns a copy of the current session.
func (m *Master) Session() (SessionObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return SessionObject{}, false
	}
	return *m.session, true
}

// Children lists registrations ordered by app key.
func (m *Master) Children() []Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Master) snapshotLocked() []Registration {
	out := make([]Registration, 0, len(m.children))
	for _, reg := range m.children {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppKey < out[j].AppKey })
	return out
}

// Unregister forgets appKey.
func (m *Master) Unregister(appKey string) {
	m.mu.Lock()
	delete(m.children, appKey)
	m.mu.Unlock()
}

// Close stops listening and waits for in-flight handlers.
func (m *Master) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.remove()
	m.cancel()
	m.wg.Wait()
}

func (m *Master) onMessage(ev Event) {
	msg := ev.Message
	switch msg.APIName {
	case APIConnect:
		m.connect(ev)
	case APIDisconnect:
		m.disconnect(ev)
	case "":
		return
	default:
		m.dispatch(ev)
	}
}

func (m *Master) connect(ev Event) {
	msg := ev.Message
	if msg.AppKey == "" || msg.AppName == "" || msg.ClientOrigin == "" {
		m.log.V(1).Info("ignored connect without identity", "origin", ev.Origin)
		return
	}

	frame, ok := m.win.Frame(FramePrefix + msg.AppName)
	if !ok {
		m.log.V(1).Info("ignored connect from unknown frame", "appName", msg.AppName)
		return
	}
	// The sender must be the app's own frame and declare its real origin.
	if ev.Source != frame || ev.Origin != msg.ClientOrigin || frame.Origin() != msg.ClientOrigin {
		m.log.V(1).Info("ignored connect from foreign frame", "appName", msg.AppName, "origin", ev.Origin)
		return
	}

	m.mu.Lock()
	existing, exists := m.children[msg.AppKey]
	if exists && existing.AppName != msg.AppName {
		m.mu.Unlock()
		m.log.V(1).Info("ignored connect for app key owned by another app", "appKey", msg.AppKey, "appName", msg.AppName)
		return
	}
	if !exists && len(m.children) >= m.opts.MaxChildren {
		m.mu.Unlock()
		m.log.Info("child registry full", "appKey", msg.AppKey, "max", m.opts.MaxChildren)
		return
	}
	m.children[msg.AppKey] = Registration{
		AppKey:       msg.AppKey,
		AppName:      msg.AppName,
		ClientOrigin: msg.ClientOrigin,
		Location:     msg.Location,
		ConnectedAt:  time.Now(),
		frame:        frame,
	}
	m.mu.Unlock()

	frame.PostMessage(m.win, Message{
		APIName:   APIConnect,
		AppKey:    msg.AppKey,
		AppName:   msg.AppName,
		RequestID: msg.RequestID,
	}, msg.ClientOrigin)
}

func (m *Master) disconnect(ev Event) {
	key := ev.Message.AppKey
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.children[key]
	if !ok || reg.ClientOrigin != ev.Origin {
		return
	}
	delete(m.children, key)
}

func (m *Master) dispatch(ev Event) {
	msg := ev.Message

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	reg, registered := m.children[msg.AppKey]
	if !registered || reg.ClientOrigin != ev.Origin {
		m.mu.RUnlock()
		m.log.V(1).Info("ignored request from unregistered app", "appKey", msg.AppKey, "api", msg.APIName)
		return
	}
	h := m.handlers[msg.APIName]
	// Add under the lock so Close cannot be waiting yet.
	m.wg.Add(1)
	m.mu.RUnlock()

	go func() {
		defer m.wg.Done()

		reply := Message{
			APIName:   msg.APIName,
			AppKey:    reg.AppKey,
			AppName:   reg.AppName,
			RequestID: msg.RequestID,
		}
		if h == nil {
			reply.Error = ErrUnsupported.Error()
		} else {
			data, err := m.invoke(h, Request{
				AppKey:  reg.AppKey,
				AppName: reg.AppName,
				Origin:  ev.Origin,
				Data:    msg.Data,
			})
			switch {
			case err != nil:
				m.log.V(1).Info("handler failed", "api", msg.APIName, "appKey", reg.AppKey, "error", err.Error())
				reply.Error = publicError(err)
			default:
				reply.Data = data
			}
		}
		reg.frame.PostMessage(m.win, reply, reg.ClientOrigin)
	}()
}

func (m *Master) invoke(h Handler, req Request) (data json.RawMessage, err error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			m.log.Info("handler panicked", "panic", r)
			err = errors.New("handler panicked")
		}
	}()

	v, err := h(ctx, req)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func publicError(err error) string {
	switch {
	case errors.Is(err, ErrNoSession):
		return ErrNoSession.Error()
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported.Error()
	default:
		return "request failed"
	}
}
