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

// Package appl is the application layer of the gateway: it consumes
// session-protocol events, turns pull requests into HTTP fetches and
// HTTP results back into protocol replies, and relays push-related
// events to and from the push gateway.
package appl

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"

	"github.com/Comcast/wapgate/convert"
	"github.com/Comcast/wapgate/event"
	"github.com/Comcast/wapgate/urlmap"

	"golang.org/x/net/publicsuffix"
)

// Session is the one slice of WSP session state the application layer
// touches: the stored referer URL for smart-error recovery, and the
// session's cookie jar if the session layer keeps one.
type Session interface {
	ID() int64
	RefererURL() string
	SetRefererURL(url string)

	// CookieJar may return nil; then no cookie handling happens
	// for this session.
	CookieJar() http.CookieJar
}

// SessionLayer is the WSP collaborator: a black box that accepts the
// events we emit and resolves session identifiers.
type SessionLayer interface {
	// DispatchSession hands an event to the session-mode WSP
	// machinery.
	DispatchSession(e event.Event)

	// DispatchUnit hands an event to connectionless WSP.
	DispatchUnit(e event.Event)

	// SessionByID returns the session for the id, or nil.
	SessionByID(id int64) Session
}

// PushGateway is the push-gateway collaborator.
type PushGateway interface {
	Dispatch(e event.Event)
	HaveSessionFor(t event.AddrTuple) bool
	HaveSessionForID(sid int64) bool
}

// Config carries the application layer's startup parameters.
type Config struct {
	// GatewayName identifies this gateway in X-WAP-Gateway and
	// Via headers (for example "WAPGate/1.4").
	GatewayName string

	// Hostname is this gateway's official name for Via headers.
	Hostname string

	// SmartErrors substitutes a navigable error deck for raw
	// transport failures.
	SmartErrors bool

	// DeviceHome is the fallback home URL for smart errors.  Empty
	// means none.
	DeviceHome string

	// QueueSize bounds the inbound event queue.  0 means a
	// reasonable default.
	QueueSize int

	Verbose bool
}

// Deps are the collaborators the application layer talks to.
type Deps struct {
	Sessions    SessionLayer
	PushGateway PushGateway // nil when no push gateway is configured

	Converters *convert.Registry
	URLMap     *urlmap.Table

	// Charsets is what the markup transcoder can handle; it drives
	// the synthesized Accept-Charset headers.
	Charsets []string

	// Caller overrides the default HTTP caller.  Tests use this.
	Caller Caller
}

type runStatus int

const (
	limbo runStatus = iota
	running
	terminating
)

// App is the application layer's context object.  Construct one at
// startup, Start it, and Shutdown it when done.
type App struct {
	cfg Config

	wsp      SessionLayer
	ppg      PushGateway
	caller   Caller
	conv     *convert.Registry
	urls     *urlmap.Table
	charsets []string

	queue   chan event.Event
	fetches int64 // atomic in-flight fetch count

	mu     sync.Mutex
	status runStatus

	dispatcherDone chan struct{}
	repliesDone    chan struct{}
}

// New makes an App.  It does not start the loops; see Start.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Sessions == nil {
		return nil, errors.New("appl: no session layer")
	}
	if deps.Converters == nil {
		deps.Converters = convert.NewRegistry()
	}
	if deps.URLMap == nil {
		deps.URLMap = urlmap.NewTable()
	}
	if deps.Caller == nil {
		deps.Caller = NewHTTPCaller(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.GatewayName == "" {
		cfg.GatewayName = "WAPGate/1.4"
	}

	return &App{
		cfg:            cfg,
		wsp:            deps.Sessions,
		ppg:            deps.PushGateway,
		caller:         deps.Caller,
		conv:           deps.Converters,
		urls:           deps.URLMap,
		charsets:       deps.Charsets,
		queue:          make(chan event.Event, cfg.QueueSize),
		dispatcherDone: make(chan struct{}),
		repliesDone:    make(chan struct{}),
	}, nil
}

// Start spins up the dispatcher loop and the reply drain loop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != limbo {
		return errors.New("appl: already started")
	}
	a.status = running
	go a.mainLoop(ctx)
	go a.returnRepliesLoop()
	return nil
}

// Dispatch submits one inbound event.  Valid only while running;
// calling it in any other state is a caller bug.  The send happens
// under the lock, so a racing Shutdown can't close the queue
// mid-send.
func (a *App) Dispatch(e event.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != running {
		log.Panicf("appl: Dispatch of %s while not running", e.EventName())
	}
	a.queue <- e
}

// Load reports the in-flight fetch count plus the queued event count.
func (a *App) Load() int64 {
	return atomic.LoadInt64(&a.fetches) + int64(len(a.queue))
}

// Shutdown stops accepting events, drains the dispatcher, signals the
// HTTP caller, and waits for the reply drain loop to exit.
func (a *App) Shutdown() error {
	a.mu.Lock()
	if a.status != running {
		a.mu.Unlock()
		return errors.New("appl: not running")
	}
	a.status = terminating
	close(a.queue)
	a.mu.Unlock()

	<-a.dispatcherDone

	a.caller.SignalShutdown()
	<-a.repliesDone

	a.mu.Lock()
	a.status = limbo
	a.mu.Unlock()
	return nil
}

func (a *App) logf(format string, args ...interface{}) {
	if !a.cfg.Verbose {
		return
	}
	log.Printf(format, args...)
}

// mainLoop consumes the inbound queue until Shutdown closes it.
//
// Push events are translated for the push gateway; pull events start
// fetches.  An event kind we don't know means the producer violated
// the contract, so we die loudly.
func (a *App) mainLoop(ctx context.Context) {
	defer close(a.dispatcherDone)

	for ev := range a.queue {
		a.logf("appl: handling %s", ev.EventName())

		switch e := ev.(type) {
		case *event.MethodInvokeInd:
			a.wsp.DispatchSession(&event.MethodInvokeRes{
				ServerTransactionID: e.ServerTransactionID,
				SessionID:           e.SessionID,
			})
			a.startFetch(ctx, ev)

		case *event.UnitMethodInvokeInd:
			a.startFetch(ctx, ev)

		case *event.ConnectInd:
			if a.ppg != nil && a.ppg.HaveSessionFor(e.AddrTuple) {
				a.indicatePushConnection(e)
			} else {
				a.wsp.DispatchSession(&event.ConnectRes{
					SessionID:              e.SessionID,
					NegotiatedCapabilities: negotiateCapabilities(e.RequestedCapabilities),
				})
			}

		case *event.DisconnectInd:
			if a.havePushSession(e.SessionHandle) {
				a.indicatePushDisconnect(e)
			}

		case *event.SuspendInd:
			if a.havePushSession(e.SessionID) {
				a.indicatePushSuspend(e)
			}

		case *event.ResumeInd:
			if a.havePushSession(e.SessionID) {
				a.indicatePushResume(e)
			} else {
				a.wsp.DispatchSession(&event.ResumeRes{
					SessionID: e.SessionID,
				})
			}

		case *event.MethodResultCnf:
			// Nothing to do.

		case *event.MethodAbortInd:
			// Accepted but not enacted: an in-flight fetch is
			// not interrupted.

		case *event.ConfirmedPushCnf:
			a.confirmPush(e)

		case *event.PushAbortInd:
			a.indicatePushAbort(e)

		case *event.PomConnectRes:
			a.respondPushConnection(e)

		default:
			log.Panicf("appl: can't handle %s event", ev.EventName())
		}
	}
}

func (a *App) havePushSession(sid int64) bool {
	return a.ppg != nil && a.ppg.HaveSessionForID(sid)
}

// negotiateCapabilities answers a client's requested capabilities.
//
// The application layer gets a straight decoding of the WSP-level
// capabilities and replies with the ones it wants to set or refuse;
// anything it leaves out means "unknown; don't care", which the WSP
// layer treats as accepting what the client proposed.  Currently we
// don't know or care about any capabilities, though "Extended Methods"
// will likely be the first.
func negotiateCapabilities(req []event.Capability) []event.Capability {
	return []event.Capability{}
}

// NewCookieJar makes a cookie jar suitable for Session
// implementations that want per-session cookies.
func NewCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}
