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
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/Comcast/wapgate/event"
	"github.com/Comcast/wapgate/headers"
)

// The push relay: translations between the S- session events and the
// Pom-/Po- push-gateway events.  Translation is mechanical except for
// the two decoded headers on Pom-Connect.ind.

// applicationNames maps OMNA push application id codes to their
// symbolic names.
var applicationNames = map[int64]string{
	0:  "any application",
	1:  "push.sia",
	2:  "wml ua",
	3:  "wta ua",
	4:  "mms ua",
	5:  "push.syncml",
	6:  "loc ua",
	7:  "syncml.dm",
	8:  "drm ua",
	9:  "emn ua",
	10: "wv ua",
}

// defaultApplication is assumed when a connecting client names no
// application at all.
const defaultApplication = "wml ua"

// bearerNames maps bearer type codes to symbolic names.  Code 0 is
// not a valid indication.
var bearerNames = map[uint8]string{
	1:  "sms",
	2:  "csd",
	3:  "ussd",
	4:  "packet data",
	5:  "gprs",
	6:  "cdma sms",
	7:  "cdma csd",
	8:  "cdma packet data",
	9:  "is-136 csd",
	10: "is-136 packet data",
	11: "flex",
	12: "reflex",
	13: "iden sms",
	14: "iden csd",
	15: "iden packet data",
}

func (a *App) indicatePushConnection(e *event.ConnectInd) {
	push := e.ClientHeaders.Clone()
	if push == nil {
		push = http.Header{}
	}

	app := checkApplicationHeaders(push)
	bearer := decodeBearerIndication(push)

	a.ppg.Dispatch(&event.PomConnectInd{
		AddrTuple:             e.AddrTuple,
		SessionID:             e.SessionID,
		RequestedCapabilities: e.RequestedCapabilities,
		AcceptApplication:     app,
		BearerIndication:      bearer,
		PushHeaders:           push,
	})
}

func (a *App) respondPushConnection(e *event.PomConnectRes) {
	a.wsp.DispatchSession(&event.ConnectRes{
		SessionID:              e.SessionID,
		NegotiatedCapabilities: e.NegotiatedCapabilities,
	})
}

func (a *App) indicatePushDisconnect(e *event.DisconnectInd) {
	a.ppg.Dispatch(&event.PomDisconnectInd{
		ReasonCode:    e.ReasonCode,
		ErrorHeaders:  e.ErrorHeaders,
		ErrorBody:     e.ErrorBody,
		SessionHandle: e.SessionHandle,
	})
}

func (a *App) indicatePushSuspend(e *event.SuspendInd) {
	a.ppg.Dispatch(&event.PomSuspendInd{
		Reason:    e.Reason,
		SessionID: e.SessionID,
	})
}

func (a *App) indicatePushResume(e *event.ResumeInd) {
	client := e.ClientHeaders.Clone()
	if client == nil {
		client = http.Header{}
	}
	bearer := decodeBearerIndication(client)

	a.ppg.Dispatch(&event.PomResumeInd{
		AddrTuple:        e.AddrTuple,
		ClientHeaders:    client,
		BearerIndication: bearer,
		SessionID:        e.SessionID,
	})
}

// Confirmations and aborts are forwarded whether or not the session
// was announced here; the push gateway keeps its own session
// accounting.

func (a *App) confirmPush(e *event.ConfirmedPushCnf) {
	if a.ppg == nil {
		log.Printf("ERROR appl: push confirmation for session %d with no push gateway", e.SessionID)
		return
	}
	a.ppg.Dispatch(&event.PoConfirmedPushCnf{
		ServerPushID:  e.ServerPushID,
		SessionHandle: e.SessionID,
	})
}

func (a *App) indicatePushAbort(e *event.PushAbortInd) {
	if a.ppg == nil {
		log.Printf("ERROR appl: push abort for session %d with no push gateway", e.SessionID)
		return
	}
	a.ppg.Dispatch(&event.PoPushAbortInd{
		PushID:        e.PushID,
		Reason:        e.Reason,
		SessionHandle: e.SessionID,
	})
}

// checkApplicationHeaders pulls the Accept-Application headers out of
// the push headers and decodes each numeric application id to its
// symbolic name.  No header at all means the client is a plain WML
// browser, so the default is assumed; an id we can't decode is logged
// and skipped.
func checkApplicationHeaders(push http.Header) http.Header {
	app := http.Header{}

	vals := headers.Split(push, "Accept-Application")
	if len(vals) == 0 {
		app.Add("Accept-Application", defaultApplication)
		log.Printf("appl: push client sent no Accept-Application, assuming %q", defaultApplication)
		return app
	}

	for _, v := range vals {
		name, ok := decodeApplicationID(v)
		if !ok {
			log.Printf("ERROR appl: unknown push application id %q, skipping", v)
			continue
		}
		app.Add("Accept-Application", name)
	}
	return app
}

func decodeApplicationID(v string) (string, bool) {
	code, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return "", false
	}
	name, have := applicationNames[code]
	return name, have
}

// decodeBearerIndication pulls the Bearer-Indication header out of the
// push headers and decodes its single byte value.  The header is
// optional; a missing one yields nil.  A duplicated or malformed one
// is a client error: it is logged and the indication omitted, rather
// than guessed at.
func decodeBearerIndication(push http.Header) http.Header {
	vals := headers.Split(push, "Bearer-Indication")
	switch {
	case len(vals) == 0:
		return nil
	case 1 < len(vals):
		log.Printf("ERROR appl: %d Bearer-Indication headers, omitting the indication", len(vals))
		return nil
	}

	code, err := strconv.ParseUint(strings.TrimSpace(vals[0]), 0, 8)
	if err != nil {
		log.Printf("ERROR appl: malformed Bearer-Indication %q, omitting the indication", vals[0])
		return nil
	}
	name, have := bearerNames[uint8(code)]
	if !have {
		log.Printf("ERROR appl: illegal bearer type %d, omitting the indication", code)
		return nil
	}

	bearer := http.Header{}
	bearer.Add("Bearer-Indication", name)
	return bearer
}
