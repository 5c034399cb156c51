package frame

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a child call when neither the context nor
// ChildOptions set a shorter deadline.
const DefaultTimeout = 10 * time.Second

type ChildOptions struct {
	AppKey  string
	AppName string
	// MasterOrigin is the only origin replies are accepted from.
	MasterOrigin string
	Location     string
	Timeout      time.Duration
	// OnSession is called with unsolicited MASTER_INIT pushes.
	OnSession func(SessionObject)
	Logger    logr.Logger
}

type pendingCall struct {
	api   APIName
	reply chan Message
}

// Child is an embedded application's endpoint.
type Child struct {
	win    *Window
	parent *Window
	opts   ChildOptions
	log    logr.Logger

	mu      sync.Mutex
	pending map[string]pendingCall
	closed  bool

	remove func()
	done   chan struct{}
}

// NewChild attaches one listener to win. win must already be embedded.
func NewChild(win *Window, opts ChildOptions) (*Child, error) {
	if opts.AppKey == "" || opts.AppName == "" {
		return nil, errors.New("frame: app key and app name are required")
	}
	if opts.MasterOrigin == "" || opts.MasterOrigin == AnyOrigin {
		return nil, errors.New("frame: an explicit master origin is required")
	}
	parent := win.Parent()
	if parent == nil {
		return nil, ErrNoParent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	c := &Child{
		win:     win,
		parent:  parent,
		opts:    opts,
		log:     opts.Logger.WithName("child").WithValues("appKey", opts.AppKey),
		pending: make(map[string]pendingCall),
		done:    make(chan struct{}),
	}
	c.remove = win.AddListener(c.onMessage)
	return c, nil
}

// Connect performs the handshake.
func (c *Child) Connect(ctx context.Context) error {
	_, err := c.call(ctx, Message{
		APIName:      APIConnect,
		ClientOrigin: c.win.Origin(),
		Location:     c.opts.Location,
	})
	return err
}

// Call sends api with data and decodes the reply data into out, which may be nil.
func (c *Child) Call(ctx context.Context, api APIName, data, out interface{}) error {
	if api == APIConnect || api == APIDisconnect {
		return fmt.Errorf("frame: %s is not a request api", api)
	}
	msg := Message{APIName: api}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("frame: encode %s: %w", api, err)
		}
		msg.Data = raw
	}

	reply, err := c.call(ctx, msg)
	if err != nil {
		return err
	}
	if out == nil || len(reply.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Data, out); err != nil {
		return fmt.Errorf("frame: decode %s: %w", api, err)
	}
	return nil
}

// UserInfo asks the master for the signed-in user.
func (c *Child) UserInfo(ctx context.Context) (UserInfo, error) {
	var u UserInfo
	err := c.Call(ctx, APIGetUserInfo, nil, &u)
	return u, err
}

// Session asks the master for the whole session object.
func (c *Child) Session(ctx context.Context) (SessionObject, error) {
	var s SessionObject
	err := c.Call(ctx, APIMasterInit, nil, &s)
	return s, err
}

// Pending reports the number of calls waiting for a reply.
func (c *Child) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close removes the listener, fails pending calls with ErrClosed and tells
// the master to forget this app.
func (c *Child) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[string]pendingCall)
	close(c.done)
	c.mu.Unlock()

	c.remove()
	c.parent.PostMessage(c.win, Message{
		APIName: APIDisconnect,
		AppKey:  c.opts.AppKey,
		AppName: c.opts.AppName,
	}, c.opts.MasterOrigin)
}

func (c *Child) call(ctx context.Context, msg Message) (Message, error) {
	id := uuid.NewString()
	p := pendingCall{api: msg.APIName, reply: make(chan Message, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrClosed
	}
	c.pending[id] = p
	c.mu.Unlock()
	defer c.forget(id)

	msg.AppKey = c.opts.AppKey
	msg.AppName = c.opts.AppName
	msg.RequestID = id

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	c.parent.PostMessage(c.win, msg, c.opts.MasterOrigin)

	select {
	case reply := <-p.reply:
		if reply.Error != "" {
			return Message{}, &RemoteError{API: reply.APIName, Message: reply.Error}
		}
		return reply, nil
	case <-timer.C:
		c.log.V(1).Info("call timed out", "api", msg.APIName, "requestId", id)
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrClosed
	}
}

func (c *Child) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Child) onMessage(ev Event) {
	if ev.Origin != c.opts.MasterOrigin || ev.Source != c.parent {
		return
	}
	msg := ev.Message

	if msg.RequestID == "" {
		if msg.APIName == APIMasterInit && c.opts.OnSession != nil && msg.AppKey == c.opts.AppKey {
			var s SessionObject
			if err := json.Unmarshal(msg.Data, &s); err != nil {
				c.log.V(1).Info("ignored undecodable session push")
				return
			}
			c.opts.OnSession(s)
		}
		return
	}

	c.mu.Lock()
	p, ok := c.pending[msg.RequestID]
	if ok && p.api == msg.APIName {
		delete(c.pending, msg.RequestID)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok {
		p.reply <- msg
	}
}
