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

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Comcast/wapgate/appl"
	"github.com/Comcast/wapgate/convert"
	"github.com/Comcast/wapgate/dlr"
	"github.com/Comcast/wapgate/event"
	"github.com/Comcast/wapgate/tools"
	"github.com/Comcast/wapgate/urlmap"
	"github.com/Comcast/wapgate/wml"
)

// Service couples the application layer to the outside: inbound
// events arrive over stdin, MQTT, or WebSockets; events the
// application layer emits go back out over the same couplings.
type Service struct {
	conf    *Conf
	app     *appl.App
	urls    *urlmap.Table
	convs   *convert.Registry
	store   dlr.Storage // nil when none configured
	started time.Time

	Verbose bool

	out chan event.Event

	mu           sync.Mutex
	sessions     map[int64]*Session
	pushSessions map[int64]bool
	pushClients  map[string]bool
	emitters     []func([]byte)
}

// Session is the per-session state the application layer consults.
type Session struct {
	id  int64
	jar http.CookieJar

	mu      sync.Mutex
	referer string
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) RefererURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referer
}

func (s *Session) SetRefererURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referer = url
}

func (s *Session) CookieJar() http.CookieJar { return s.jar }

func NewService(conf *Conf) (*Service, error) {
	urls, err := conf.URLMap()
	if err != nil {
		return nil, err
	}

	s := &Service{
		conf:         conf,
		urls:         urls,
		convs:        conf.Converters(),
		started:      time.Now(),
		out:          make(chan event.Event, 1024),
		sessions:     map[int64]*Session{},
		pushSessions: map[int64]bool{},
		pushClients:  map[string]bool{},
	}
	for _, addr := range conf.PushClients {
		s.pushClients[addr] = true
	}
	return s, nil
}

// DispatchSession and DispatchUnit emit the application layer's
// replies to the couplings.
func (s *Service) DispatchSession(e event.Event) { s.out <- e }
func (s *Service) DispatchUnit(e event.Event)    { s.out <- e }

func (s *Service) SessionByID(id int64) appl.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, have := s.sessions[id]
	if !have {
		return nil
	}
	return sess
}

// Dispatch relays an event to the push gateway coupling, remembering
// which sessions were announced to it.
func (s *Service) Dispatch(e event.Event) {
	if ind, is := e.(*event.PomConnectInd); is {
		s.mu.Lock()
		s.pushSessions[ind.SessionID] = true
		s.mu.Unlock()
	}
	if ind, is := e.(*event.PomDisconnectInd); is {
		s.mu.Lock()
		delete(s.pushSessions, ind.SessionHandle)
		s.mu.Unlock()
	}
	s.out <- e
}

func (s *Service) HaveSessionFor(t event.AddrTuple) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushClients[t.Remote.Address]
}

func (s *Service) HaveSessionForID(sid int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushSessions[sid]
}

func (s *Service) ensureSession(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, have := s.sessions[id]; have {
		return
	}
	jar, err := appl.NewCookieJar()
	if err != nil {
		log.Printf("ERROR service: cookie jar for session %d: %v", id, err)
		jar = nil
	}
	s.sessions[id] = &Session{id: id, jar: jar}
}

func (s *Service) dropSession(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Receive handles one inbound event from any coupling: session
// bookkeeping first, then the application layer.
func (s *Service) Receive(e event.Event) {
	s.logf("service received %s %s", e.EventName(), js(e))
	switch e := e.(type) {
	case *event.ConnectInd:
		s.ensureSession(e.SessionID)
	case *event.MethodInvokeInd:
		s.ensureSession(e.SessionID)
	case *event.DisconnectInd:
		s.dropSession(e.SessionHandle)
	}
	s.app.Dispatch(e)
}

func (s *Service) logf(format string, args ...interface{}) {
	if !s.Verbose {
		return
	}
	log.Printf(format, args...)
}

// js renders a value as JSON for log lines.
func js(x interface{}) string {
	bs, err := json.Marshal(x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// AddEmitter registers an outbound sink for emitted events.
func (s *Service) AddEmitter(emit func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitters = append(s.emitters, emit)
}

// EmitLoop drains the outbound channel to every registered emitter.
func (s *Service) EmitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.out:
			js, err := event.Marshal(e)
			if err != nil {
				log.Printf("ERROR service: can't marshal %s: %v", e.EventName(), err)
				continue
			}
			s.mu.Lock()
			emitters := s.emitters
			s.mu.Unlock()
			for _, emit := range emitters {
				emit(js)
			}
		}
	}
}

// Listener reads JSON event envelopes, one per line.  Blank lines and
// comment lines are ignored.
func (s *Service) Listener(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 || bytes.HasPrefix(line, []byte("#")) || bytes.HasPrefix(line, []byte("//")) {
			continue
		}
		e, err := event.Unmarshal(line)
		if err != nil {
			log.Printf("ERROR service: can't parse event: %v", err)
			continue
		}
		s.Receive(e)
	}
}

// Status snapshots the gateway for the status page.
func (s *Service) Status(ctx context.Context) *tools.Status {
	st := &tools.Status{
		GatewayName: s.conf.GatewayName,
		Hostname:    s.conf.Hostname,
		Started:     s.started,
		Load:        s.app.Load(),
		SmartErrors: s.conf.SmartErrors,
		DeviceHome:  s.conf.DeviceHome,
		URLRules:    s.urls.Rules(),
		Converters:  s.convs.ResultTypes(),
		Charsets:    wml.Charsets(),
		DLRMessages: -1,
	}
	if s.store != nil {
		n, err := s.store.Messages(ctx)
		if err != nil {
			log.Printf("ERROR service: dlr count: %v", err)
			n = -1
		}
		st.DLRMessages = n
	}
	return st
}
