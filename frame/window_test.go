package frame

import (
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPostMessageChecksTargetOrigin(t *testing.T) {
	from := NewWindow("https://desktop.local", logr.Discard())
	to := NewWindow("https://app-a.local", logr.Discard())
	defer from.Close()
	defer to.Close()

	if to.PostMessage(from, Message{APIName: APIConnect}, "https://app-b.local") {
		t.Fatal("message for another origin must be dropped")
	}
	if !to.PostMessage(from, Message{APIName: APIConnect}, "https://app-a.local") {
		t.Fatal("exact origin must be accepted")
	}
	if !to.PostMessage(from, Message{APIName: APIConnect}, AnyOrigin) {
		t.Fatal("wildcard origin must be accepted")
	}
	if to.PostMessage(nil, Message{APIName: APIConnect}, AnyOrigin) {
		t.Fatal("message without sender must be dropped")
	}

	to.Close()
	if to.PostMessage(from, Message{APIName: APIConnect}, AnyOrigin) {
		t.Fatal("closed window must drop messages")
	}
}

func TestWindowDeliversInOrderWithSenderOrigin(t *testing.T) {
	from := NewWindow("https://desktop.local", logr.Discard())
	to := NewWindow("https://app-a.local", logr.Discard())
	defer from.Close()
	defer to.Close()

	var (
		mu   sync.Mutex
		got  []string
		orig []string
	)
	to.AddListener(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Message.RequestID)
		orig = append(orig, ev.Origin)
		mu.Unlock()
	})

	for _, id := range []string{"1", "2", "3", "4"} {
		to.PostMessage(from, Message{APIName: APIGetUserInfo, RequestID: id}, AnyOrigin)
	}
	waitFor(t, "delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	})

	mu.Lock()
	defer mu.Unlock()
	for i, id := range []string{"1", "2", "3", "4"} {
		if got[i] != id || orig[i] != "https://desktop.local" {
			t.Fatalf("event %d: id=%s origin=%s", i, got[i], orig[i])
		}
	}
}

func TestListenerRemovalAndPanicIsolation(t *testing.T) {
	from := NewWindow("https://desktop.local", logr.Discard())
	to := NewWindow("https://app-a.local", logr.Discard())
	defer from.Close()
	defer to.Close()

	var mu sync.Mutex
	removedCalls, liveCalls := 0, 0

	to.AddListener(func(Event) { panic("boom") })
	remove := to.AddListener(func(Event) {
		mu.Lock()
		removedCalls++
		mu.Unlock()
	})
	to.AddListener(func(Event) {
		mu.Lock()
		liveCalls++
		mu.Unlock()
	})

	remove()
	remove()

	to.PostMessage(from, Message{APIName: APIGetUserInfo}, AnyOrigin)
	to.PostMessage(from, Message{APIName: APIGetUserInfo}, AnyOrigin)
	waitFor(t, "live listener", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return liveCalls == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if removedCalls != 0 {
		t.Fatalf("removed listener was called %d times", removedCalls)
	}
}

func TestEmbedAndUnembed(t *testing.T) {
	top := NewWindow("https://desktop.local", logr.Discard())
	app := NewWindow("https://app-a.local", logr.Discard())
	defer top.Close()
	defer app.Close()

	top.Embed(FramePrefix+"a", app)
	if f, ok := top.Frame(FramePrefix + "a"); !ok || f != app {
		t.Fatal("embedded frame not found")
	}
	if app.Parent() != top {
		t.Fatal("parent not set")
	}

	top.Unembed(FramePrefix + "a")
	if _, ok := top.Frame(FramePrefix + "a"); ok {
		t.Fatal("frame still present after unembed")
	}
	if app.Parent() != nil {
		t.Fatal("parent still set after unembed")
	}
}
