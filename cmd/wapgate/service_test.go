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
	"context"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/wapgate/appl"
	"github.com/Comcast/wapgate/convert"
	"github.com/Comcast/wapgate/event"
	"github.com/Comcast/wapgate/wml"
)

func TestReadConfDefaults(t *testing.T) {
	conf, err := ReadConf("")
	if err != nil {
		t.Fatal(err)
	}
	if conf.GatewayName != "WAPGate/1.4" {
		t.Fatalf("gateway name %q", conf.GatewayName)
	}
	if !conf.WMLScript {
		t.Fatal("wmlscript should default on")
	}
	if conf.Hostname == "" {
		t.Fatal("no hostname")
	}
}

func TestReadConf(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "conf.yaml")
	src := `
gateway-name: "WAPGate/2.0"
smart-errors: true
device-home: http://home.example.com/
map-url:
  - "http://wap.old.example/* http://www.example.com/wap/*"
wmlscript: false
dlr:
  backend: bolt
  file: dlr.db
dlr-report-cron: "0 * * * *"
`
	if err := ioutil.WriteFile(filename, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := ReadConf(filename)
	if err != nil {
		t.Fatal(err)
	}
	if conf.GatewayName != "WAPGate/2.0" {
		t.Fatalf("gateway name %q", conf.GatewayName)
	}
	if !conf.SmartErrors {
		t.Fatal("smart errors not set")
	}
	if conf.WMLScript {
		t.Fatal("wmlscript should be off")
	}
	if conf.DLR.Backend != "bolt" {
		t.Fatalf("dlr backend %q", conf.DLR.Backend)
	}
	if len(conf.MapURLs) != 1 {
		t.Fatalf("map-url %#v", conf.MapURLs)
	}

	urls, err := conf.URLMap()
	if err != nil {
		t.Fatal(err)
	}
	if got := urls.Map("http://wap.old.example/x"); got != "http://www.example.com/wap/x" {
		t.Fatalf("mapped to %q", got)
	}
}

func TestConfConverters(t *testing.T) {
	conf, err := ReadConf("")
	if err != nil {
		t.Fatal(err)
	}

	reg := conf.Converters()
	if got := len(reg.ResultTypes()); got != 2 {
		t.Fatalf("%d converters", got)
	}

	c := convert.Content{
		Type: wml.MediaType,
		Body: []byte(`<wml><card id="c"><p>Ok</p></card></wml>`),
	}
	if got := reg.Convert(&c); got != convert.Converted {
		t.Fatalf("outcome %v", got)
	}
	if c.Type != wml.CompiledType {
		t.Fatalf("type %q", c.Type)
	}

	conf.WMLScript = false
	if got := len(conf.Converters().ResultTypes()); got != 1 {
		t.Fatalf("%d converters without wmlscript", got)
	}
}

func TestDLRStorageBolt(t *testing.T) {
	conf, err := ReadConf("")
	if err != nil {
		t.Fatal(err)
	}
	conf.DLR = DLRConf{
		Backend: "bolt",
		File:    filepath.Join(t.TempDir(), "dlr.db"),
	}

	store, err := conf.DLRStorage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		t.Fatal("no storage")
	}
	defer store.Close()

	if n, err := store.Messages(context.Background()); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

// TestServiceLoop runs an event through the whole coupling: stdin
// listener in, application layer, emitter out.
func TestServiceLoop(t *testing.T) {
	conf, err := ReadConf("")
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewService(conf)
	if err != nil {
		t.Fatal(err)
	}

	app, err := appl.New(conf.ApplConfig(false), appl.Deps{
		Sessions:    s,
		PushGateway: s,
		Converters:  s.convs,
		URLMap:      s.urls,
		Charsets:    wml.Charsets(),
	})
	if err != nil {
		t.Fatal(err)
	}
	s.app = app

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer app.Shutdown()

	emitted := make(chan []byte, 16)
	s.AddEmitter(func(js []byte) { emitted <- js })
	go s.EmitLoop(ctx)

	js, err := event.Marshal(&event.ConnectInd{SessionID: 21})
	if err != nil {
		t.Fatal(err)
	}
	in := strings.NewReader("# comment\n" + string(js) + "\n")
	if err := s.Listener(ctx, in); err != nil {
		t.Fatal(err)
	}

	select {
	case js := <-emitted:
		e, err := event.Unmarshal(js)
		if err != nil {
			t.Fatal(err)
		}
		res, is := e.(*event.ConnectRes)
		if !is {
			t.Fatalf("emitted %s", e.EventName())
		}
		if res.SessionID != 21 {
			t.Fatalf("session %d", res.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing emitted")
	}

	// The connect should have registered a session.
	if s.SessionByID(21) == nil {
		t.Fatal("session not registered")
	}

	st := s.Status(ctx)
	if st.DLRMessages != -1 {
		t.Fatalf("dlr count %d without storage", st.DLRMessages)
	}
	js, err = json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(js), "WAPGate/1.4") {
		t.Fatalf("status %s", js)
	}
}

func TestEventLogRendering(t *testing.T) {
	if got := js(&event.ConnectRes{SessionID: 9}); !strings.Contains(got, `"sessionId":9`) {
		t.Fatalf("rendered %q", got)
	}
	// Unmarshalable values fall back to a Go-syntax rendering.
	if got := js(func() {}); got == "" {
		t.Fatal("no fallback rendering")
	}
}

func TestPushSessionTracking(t *testing.T) {
	conf, err := ReadConf("")
	if err != nil {
		t.Fatal(err)
	}
	conf.PushClients = []string{"10.0.0.2"}

	s, err := NewService(conf)
	if err != nil {
		t.Fatal(err)
	}

	if !s.HaveSessionFor(event.AddrTuple{Remote: event.Addr{Address: "10.0.0.2"}}) {
		t.Fatal("configured push client not recognized")
	}
	if s.HaveSessionFor(event.AddrTuple{Remote: event.Addr{Address: "10.0.0.3"}}) {
		t.Fatal("unknown client recognized")
	}

	if s.HaveSessionForID(31) {
		t.Fatal("session known too early")
	}
	s.Dispatch(&event.PomConnectInd{SessionID: 31})
	<-s.out
	if !s.HaveSessionForID(31) {
		t.Fatal("announced session not tracked")
	}
	s.Dispatch(&event.PomDisconnectInd{SessionHandle: 31})
	<-s.out
	if s.HaveSessionForID(31) {
		t.Fatal("disconnected session still tracked")
	}
}
