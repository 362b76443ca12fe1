/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package appl

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/wapgate/event"
)

type fakeSession struct {
	id      int64
	mu      sync.Mutex
	referer string
	jar     http.CookieJar
}

func (s *fakeSession) ID() int64 { return s.id }

func (s *fakeSession) RefererURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referer
}

func (s *fakeSession) SetRefererURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referer = url
}

func (s *fakeSession) CookieJar() http.CookieJar { return s.jar }

type fakeWSP struct {
	mu       sync.Mutex
	events   chan event.Event
	sessions map[int64]*fakeSession
}

func newFakeWSP() *fakeWSP {
	return &fakeWSP{
		events:   make(chan event.Event, 16),
		sessions: map[int64]*fakeSession{},
	}
}

func (w *fakeWSP) DispatchSession(e event.Event) { w.events <- e }
func (w *fakeWSP) DispatchUnit(e event.Event)    { w.events <- e }

func (w *fakeWSP) SessionByID(id int64) Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, have := w.sessions[id]
	if !have {
		return nil
	}
	return s
}

func (w *fakeWSP) add(s *fakeSession) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[s.id] = s
}

type fakeCall struct {
	method  string
	url     string
	headers http.Header
	body    []byte
	entry   *FetchEntry
}

type fakeCaller struct {
	mu      sync.Mutex
	calls   []fakeCall
	results chan *FetchResult
	once    sync.Once

	// respond, when set, answers each request immediately.
	respond func(fakeCall) *FetchResult
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{results: make(chan *FetchResult, 16)}
}

func (c *fakeCaller) StartRequest(ctx context.Context, method, url string, hdrs http.Header, body []byte, entry *FetchEntry) {
	call := fakeCall{method, url, hdrs, body, entry}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	respond := c.respond
	c.mu.Unlock()
	if respond != nil {
		c.results <- respond(call)
	}
}

func (c *fakeCaller) ReceiveResult() (*FetchResult, bool) {
	r, ok := <-c.results
	return r, ok
}

func (c *fakeCaller) SignalShutdown() {
	c.once.Do(func() { close(c.results) })
}

func (c *fakeCaller) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeCaller) lastCall(t *testing.T) fakeCall {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		t.Fatal("no calls made")
	}
	return c.calls[len(c.calls)-1]
}

type fakePPG struct {
	have   bool
	events chan event.Event
}

func newFakePPG(have bool) *fakePPG {
	return &fakePPG{have: have, events: make(chan event.Event, 16)}
}

func (p *fakePPG) Dispatch(e event.Event)                { p.events <- e }
func (p *fakePPG) HaveSessionFor(t event.AddrTuple) bool { return p.have }
func (p *fakePPG) HaveSessionForID(sid int64) bool       { return p.have }

func recvEvent(t *testing.T, ch chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return nil
}

func startTestApp(t *testing.T, cfg Config, deps Deps) (*App, *fakeWSP, *fakeCaller) {
	t.Helper()
	wsp := newFakeWSP()
	caller := newFakeCaller()
	deps.Sessions = wsp
	deps.Caller = caller
	a, err := New(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := a.Shutdown(); err != nil {
			t.Error(err)
		}
	})
	return a, wsp, caller
}

func TestHealthURL(t *testing.T) {
	a, wsp, caller := startTestApp(t, Config{}, Deps{})

	for i := 0; i < 2; i++ {
		a.Dispatch(&event.MethodInvokeInd{
			SessionID:           1,
			ServerTransactionID: int64(10 + i),
			Method:              "GET",
			RequestURI:          AliveURL,
		})

		ack, is := recvEvent(t, wsp.events).(*event.MethodInvokeRes)
		if !is {
			t.Fatal("expected the invoke ack first")
		}
		if ack.ServerTransactionID != int64(10+i) {
			t.Fatalf("ack transaction %d", ack.ServerTransactionID)
		}

		res, is := recvEvent(t, wsp.events).(*event.MethodResultReq)
		if !is {
			t.Fatal("expected a method result")
		}
		if res.Status != http.StatusOK {
			t.Fatalf("status %d", res.Status)
		}
		if got := res.ResponseHeaders.Get("Content-Type"); got != wmlMediaType {
			t.Fatalf("content type %q", got)
		}
		if string(res.ResponseBody) != healthDeck {
			t.Fatalf("body %q", res.ResponseBody)
		}
	}

	if caller.callCount() != 0 {
		t.Fatal("health check must not reach the network")
	}
}

func TestUnsupportedMethod(t *testing.T) {
	a, wsp, caller := startTestApp(t, Config{}, Deps{})

	a.Dispatch(&event.UnitMethodInvokeInd{
		TransactionID: 3,
		Method:        "PATCH",
		RequestURI:    "http://www.example.com/",
	})

	res, is := recvEvent(t, wsp.events).(*event.UnitMethodResultReq)
	if !is {
		t.Fatal("expected a unit method result")
	}
	if res.Status != http.StatusNotImplemented {
		t.Fatalf("status %d", res.Status)
	}
	if len(res.ResponseBody) != 0 {
		t.Fatal("expected an empty body")
	}
	if caller.callCount() != 0 {
		t.Fatal("no request should have been made")
	}
}

func TestResumeWithoutPushSession(t *testing.T) {
	a, wsp, _ := startTestApp(t, Config{}, Deps{})

	a.Dispatch(&event.ResumeInd{SessionID: 5})

	res, is := recvEvent(t, wsp.events).(*event.ResumeRes)
	if !is {
		t.Fatal("expected a local resume response")
	}
	if res.SessionID != 5 {
		t.Fatalf("session %d", res.SessionID)
	}
}

func TestConnectWithoutPushSession(t *testing.T) {
	a, wsp, _ := startTestApp(t, Config{}, Deps{})

	a.Dispatch(&event.ConnectInd{
		SessionID: 6,
		RequestedCapabilities: []event.Capability{
			{Name: "Extended Methods"},
		},
	})

	res, is := recvEvent(t, wsp.events).(*event.ConnectRes)
	if !is {
		t.Fatal("expected a connect response")
	}
	if res.SessionID != 6 {
		t.Fatalf("session %d", res.SessionID)
	}
	if len(res.NegotiatedCapabilities) != 0 {
		t.Fatal("nothing should have been negotiated")
	}
}

func TestShutdown(t *testing.T) {
	wsp := newFakeWSP()
	caller := newFakeCaller()
	a, err := New(Config{}, Deps{Sessions: wsp, Caller: caller})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(); err == nil {
		t.Fatal("second shutdown should fail")
	}
	if a.Load() != 0 {
		t.Fatalf("load %d after shutdown", a.Load())
	}
}

func TestDispatchShutdownRace(t *testing.T) {
	wsp := newFakeWSP()
	caller := newFakeCaller()
	a, err := New(Config{}, Deps{Sessions: wsp, Caller: caller})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A Dispatch that loses the race must die with the "not running"
	// diagnostic, never with a send on a closed channel.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if !strings.Contains(fmt.Sprint(r), "while not running") {
					t.Errorf("unexpected panic: %v", r)
				}
			}()
			for j := 0; j < 200; j++ {
				a.Dispatch(&event.MethodResultCnf{})
			}
		}()
	}

	if err := a.Shutdown(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
}

func TestConvertRegistryDefaulting(t *testing.T) {
	wsp := newFakeWSP()
	a, err := New(Config{}, Deps{Sessions: wsp})
	if err != nil {
		t.Fatal(err)
	}
	if a.conv == nil || a.urls == nil {
		t.Fatal("expected default collaborators")
	}
	if _, is := a.caller.(*HTTPCaller); !is {
		t.Fatal("expected the HTTP caller by default")
	}
}

func TestNewRequiresSessions(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("expected an error without a session layer")
	}
}
