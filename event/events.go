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

// Package event defines the typed protocol events that flow between
// the WSP session layer, the application layer, and the push gateway.
//
// Each protocol primitive gets its own struct, holding only the fields
// that primitive carries.  The application layer's dispatcher does an
// exhaustive type switch over these; an event kind it doesn't know is
// a contract violation by the producer, not a runtime condition.
package event

import (
	"net/http"
)

// Event is a protocol event.
//
// The name is the primitive's name (for example "S-MethodInvoke.ind"),
// used in logs and in the JSON envelope.
type Event interface {
	EventName() string
}

// Addr is one endpoint of an address tuple.
type Addr struct {
	Address string `json:"address"`
	Port    int    `json:"port,omitempty"`
}

// AddrTuple identifies a client/server address pair for a session or
// a connectionless transaction.
type AddrTuple struct {
	Remote Addr `json:"remote"`
	Local  Addr `json:"local"`
}

// Capability is one decoded WSP capability.
//
// Data of nil means "refuse"; see the capability negotiation notes in
// package appl.
type Capability struct {
	Name   string `json:"name"`
	Data   []byte `json:"data,omitempty"`
	Accept bool   `json:"accept,omitempty"`
}

// MethodInvokeInd is a pull request arriving over a WSP session.
type MethodInvokeInd struct {
	AddrTuple           AddrTuple   `json:"addrTuple"`
	SessionID           int64       `json:"sessionId"`
	ServerTransactionID int64       `json:"serverTransactionId"`
	ClientSDUSize       int64       `json:"clientSduSize,omitempty"`
	Method              string      `json:"method"`
	RequestURI          string      `json:"requestUri"`
	SessionHeaders      http.Header `json:"sessionHeaders,omitempty"`
	RequestHeaders      http.Header `json:"requestHeaders,omitempty"`
	RequestBody         []byte      `json:"requestBody,omitempty"`
}

func (e *MethodInvokeInd) EventName() string { return "S-MethodInvoke.ind" }

// MethodInvokeRes acknowledges a MethodInvokeInd.
type MethodInvokeRes struct {
	ServerTransactionID int64 `json:"serverTransactionId"`
	SessionID           int64 `json:"sessionId"`
}

func (e *MethodInvokeRes) EventName() string { return "S-MethodInvoke.res" }

// UnitMethodInvokeInd is a connectionless pull request.
type UnitMethodInvokeInd struct {
	AddrTuple      AddrTuple   `json:"addrTuple"`
	TransactionID  int64       `json:"transactionId"`
	Method         string      `json:"method"`
	RequestURI     string      `json:"requestUri"`
	RequestHeaders http.Header `json:"requestHeaders,omitempty"`
	RequestBody    []byte      `json:"requestBody,omitempty"`
}

func (e *UnitMethodInvokeInd) EventName() string { return "S-Unit-MethodInvoke.ind" }

// MethodResultReq carries an HTTP-shaped reply back over a session.
type MethodResultReq struct {
	ServerTransactionID int64       `json:"serverTransactionId"`
	Status              int         `json:"status"`
	ResponseHeaders     http.Header `json:"responseHeaders,omitempty"`
	ResponseBody        []byte      `json:"responseBody,omitempty"`
	SessionID           int64       `json:"sessionId"`
}

func (e *MethodResultReq) EventName() string { return "S-MethodResult.req" }

// UnitMethodResultReq carries an HTTP-shaped reply back connectionless.
type UnitMethodResultReq struct {
	AddrTuple       AddrTuple   `json:"addrTuple"`
	TransactionID   int64       `json:"transactionId"`
	Status          int         `json:"status"`
	ResponseHeaders http.Header `json:"responseHeaders,omitempty"`
	ResponseBody    []byte      `json:"responseBody,omitempty"`
}

func (e *UnitMethodResultReq) EventName() string { return "S-Unit-MethodResult.req" }

// MethodResultCnf confirms delivery of a method result.
type MethodResultCnf struct {
	ServerTransactionID int64 `json:"serverTransactionId"`
	SessionID           int64 `json:"sessionId"`
}

func (e *MethodResultCnf) EventName() string { return "S-MethodResult.cnf" }

// MethodAbortInd reports that the client aborted a method in flight.
type MethodAbortInd struct {
	TransactionID int64 `json:"transactionId"`
	SessionID     int64 `json:"sessionId"`
}

func (e *MethodAbortInd) EventName() string { return "S-MethodAbort.ind" }

// ConnectInd is a session connect indication.
type ConnectInd struct {
	AddrTuple             AddrTuple    `json:"addrTuple"`
	SessionID             int64        `json:"sessionId"`
	ClientHeaders         http.Header  `json:"clientHeaders,omitempty"`
	RequestedCapabilities []Capability `json:"requestedCapabilities,omitempty"`
}

func (e *ConnectInd) EventName() string { return "S-Connect.ind" }

// ConnectRes answers a ConnectInd.
type ConnectRes struct {
	SessionID              int64        `json:"sessionId"`
	ServerHeaders          http.Header  `json:"serverHeaders,omitempty"`
	NegotiatedCapabilities []Capability `json:"negotiatedCapabilities,omitempty"`
}

func (e *ConnectRes) EventName() string { return "S-Connect.res" }

// DisconnectInd is a session disconnect indication.
type DisconnectInd struct {
	SessionHandle int64       `json:"sessionHandle"`
	ReasonCode    int64       `json:"reasonCode"`
	ErrorHeaders  http.Header `json:"errorHeaders,omitempty"`
	ErrorBody     []byte      `json:"errorBody,omitempty"`
}

func (e *DisconnectInd) EventName() string { return "S-Disconnect.ind" }

// SuspendInd is a session suspend indication.
type SuspendInd struct {
	SessionID int64 `json:"sessionId"`
	Reason    int64 `json:"reason"`
}

func (e *SuspendInd) EventName() string { return "S-Suspend.ind" }

// ResumeInd is a session resume indication.
type ResumeInd struct {
	AddrTuple     AddrTuple   `json:"addrTuple"`
	SessionID     int64       `json:"sessionId"`
	ClientHeaders http.Header `json:"clientHeaders,omitempty"`
}

func (e *ResumeInd) EventName() string { return "S-Resume.ind" }

// ResumeRes answers a ResumeInd locally when no push session exists.
type ResumeRes struct {
	SessionID     int64       `json:"sessionId"`
	ServerHeaders http.Header `json:"serverHeaders,omitempty"`
}

func (e *ResumeRes) EventName() string { return "S-Resume.res" }

// ConfirmedPushCnf confirms a confirmed push.
type ConfirmedPushCnf struct {
	SessionID    int64 `json:"sessionId"`
	ServerPushID int64 `json:"serverPushId"`
}

func (e *ConfirmedPushCnf) EventName() string { return "S-ConfirmedPush.cnf" }

// PushAbortInd reports that the client aborted a push.
type PushAbortInd struct {
	SessionID int64 `json:"sessionId"`
	PushID    int64 `json:"pushId"`
	Reason    int64 `json:"reason"`
}

func (e *PushAbortInd) EventName() string { return "S-PushAbort.ind" }

// The Pom-/Po- events below are the push-gateway vocabulary.  The
// application layer translates between them and the S- events above;
// see the push relay in package appl.

// PomConnectInd announces a new push session to the push gateway.
//
// AcceptApplication and BearerIndication hold the decoded optional
// headers; the remaining push headers ride along in PushHeaders.
type PomConnectInd struct {
	AddrTuple             AddrTuple    `json:"addrTuple"`
	SessionID             int64        `json:"sessionId"`
	RequestedCapabilities []Capability `json:"requestedCapabilities,omitempty"`
	AcceptApplication     http.Header  `json:"acceptApplication,omitempty"`
	BearerIndication      http.Header  `json:"bearerIndication,omitempty"`
	PushHeaders           http.Header  `json:"pushHeaders,omitempty"`
}

func (e *PomConnectInd) EventName() string { return "Pom-Connect.ind" }

// PomConnectRes is the push gateway's answer to PomConnectInd.
type PomConnectRes struct {
	SessionID              int64        `json:"sessionId"`
	NegotiatedCapabilities []Capability `json:"negotiatedCapabilities,omitempty"`
}

func (e *PomConnectRes) EventName() string { return "Pom-Connect.res" }

// PomDisconnectInd tells the push gateway that a session went away.
type PomDisconnectInd struct {
	ReasonCode    int64       `json:"reasonCode"`
	ErrorHeaders  http.Header `json:"errorHeaders,omitempty"`
	ErrorBody     []byte      `json:"errorBody,omitempty"`
	SessionHandle int64       `json:"sessionHandle"`
}

func (e *PomDisconnectInd) EventName() string { return "Pom-Disconnect.ind" }

// PomSuspendInd tells the push gateway that a session was suspended.
type PomSuspendInd struct {
	Reason    int64 `json:"reason"`
	SessionID int64 `json:"sessionId"`
}

func (e *PomSuspendInd) EventName() string { return "Pom-Suspend.ind" }

// PomResumeInd tells the push gateway that a session was resumed.
type PomResumeInd struct {
	AddrTuple        AddrTuple   `json:"addrTuple"`
	ClientHeaders    http.Header `json:"clientHeaders,omitempty"`
	BearerIndication http.Header `json:"bearerIndication,omitempty"`
	SessionID        int64       `json:"sessionId"`
}

func (e *PomResumeInd) EventName() string { return "Pom-Resume.ind" }

// PoConfirmedPushCnf confirms a push toward the push gateway.
//
// Acknowledgement headers are intentionally not modeled.
type PoConfirmedPushCnf struct {
	ServerPushID  int64 `json:"serverPushId"`
	SessionHandle int64 `json:"sessionHandle"`
}

func (e *PoConfirmedPushCnf) EventName() string { return "Po-ConfirmedPush.cnf" }

// PoPushAbortInd reports a push abort toward the push gateway.
type PoPushAbortInd struct {
	PushID        int64 `json:"pushId"`
	Reason        int64 `json:"reason"`
	SessionHandle int64 `json:"sessionHandle"`
}

func (e *PoPushAbortInd) EventName() string { return "Po-PushAbort.ind" }
