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
	"log"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Comcast/wapgate/convert"
	"github.com/Comcast/wapgate/event"
	"github.com/Comcast/wapgate/headers"
)

// AliveURL is the health-check URL.  A GET for it is answered locally
// with a fixed deck; no HTTP request leaves the gateway, so a probe
// through the whole stack always behaves the same.
const AliveURL = "wapgate:alive"

const wmlMediaType = "text/vnd.wap.wml"

const healthDeck = `<?xml version="1.0"?>` +
	"\n" + `<!DOCTYPE wml PUBLIC "-//WAPFORUM//DTD 1.1//EN" "http://www.wapforum.org/DTD/wml_1.1.xml">` +
	"\n" + `<wml><card id="health"><p>Ok</p></card></wml>`

// startFetch turns a pull indication into an asynchronous HTTP
// request.  The protocol context rides along on a correlation entry;
// returnReply finishes the job when the result comes back.
func (a *App) startFetch(ctx context.Context, ev event.Event) {
	atomic.AddInt64(&a.fetches, 1)

	var (
		addr            event.AddrTuple
		sessionID       int64
		clientSDUSize   int64
		method, rawURL  string
		sessionHeaders  http.Header
		requestHeaders  http.Header
		body            []byte
	)
	switch e := ev.(type) {
	case *event.MethodInvokeInd:
		addr = e.AddrTuple
		sessionID = e.SessionID
		clientSDUSize = e.ClientSDUSize
		method = e.Method
		rawURL = e.RequestURI
		sessionHeaders = e.SessionHeaders
		requestHeaders = e.RequestHeaders
		body = e.RequestBody
	case *event.UnitMethodInvokeInd:
		addr = e.AddrTuple
		sessionID = -1
		method = e.Method
		rawURL = e.RequestURI
		requestHeaders = e.RequestHeaders
		body = e.RequestBody
	default:
		log.Panicf("appl: startFetch of %s", ev.EventName())
	}

	url := a.urls.Map(rawURL)

	actual := http.Header{}
	headers.Combine(actual, sessionHeaders)
	headers.Combine(actual, requestHeaders)
	headers.RemoveHop(actual)

	// The client's time-of-day request is remembered as a flag, not
	// forwarded; the reply gets a fresh stamp.
	xWapTOD := headers.Remove(actual, "X-WAP.TOD")

	a.addConvertedAccepts(actual)
	a.addCharsetHeaders(actual)
	addNetworkInfo(actual, addr)
	addClientSDUSize(actual, clientSDUSize)
	a.addVia(actual)

	if sessionID != -1 {
		if s := a.wsp.SessionByID(sessionID); s != nil {
			setCookies(actual, s, url)
			addRefererURL(actual, s.RefererURL())
		}
	}

	actual.Add("X-WAP-Gateway", a.cfg.GatewayName)
	addSessionID(actual, sessionID)
	headers.Pack(actual)

	upMethod := strings.ToUpper(method)
	switch {
	case upMethod == "GET" && url == AliveURL:
		respHeaders := http.Header{}
		respHeaders.Set("Content-Type", wmlMediaType)
		a.returnReply(http.StatusOK, []byte(healthDeck), respHeaders,
			clientSDUSize, ev, sessionID, url, xWapTOD, actual)

	case upMethod == "GET" || upMethod == "POST" || upMethod == "HEAD":
		if upMethod != "POST" {
			body = nil
		}
		entry := &FetchEntry{
			ClientSDUSize:  clientSDUSize,
			Event:          ev,
			SessionID:      sessionID,
			URL:            url,
			XWapTOD:        xWapTOD,
			RequestHeaders: actual,
		}
		a.caller.StartRequest(ctx, upMethod, url, actual, body, entry)

	default:
		log.Printf("ERROR appl: unsupported method %q for %s", method, url)
		a.returnReply(http.StatusNotImplemented, []byte{}, http.Header{},
			clientSDUSize, ev, sessionID, url, xWapTOD, actual)
	}
}

// returnRepliesLoop drains the caller until shutdown.
func (a *App) returnRepliesLoop() {
	defer close(a.repliesDone)

	for {
		r, ok := a.caller.ReceiveResult()
		if !ok {
			return
		}
		e := r.Entry
		a.returnReply(r.Status, r.Body, r.Headers, e.ClientSDUSize,
			e.Event, e.SessionID, e.URL, e.XWapTOD, e.RequestHeaders)
	}
}

// returnReply finishes one fetch: error substitution, cookie capture,
// content conversion, header scrubbing, the size and compatibility
// guards, and finally the protocol reply.
//
// reqHeaders are the headers the client sent (after synthesis); the
// compatibility guard consults their Accept.
func (a *App) returnReply(status int, body []byte, hdrs http.Header, clientSDUSize int64,
	orig event.Event, sessionID int64, url string, xWapTOD bool, reqHeaders http.Header) {

	if hdrs == nil {
		hdrs = http.Header{}
	}

	content := convert.Content{URL: url, Body: body}

	if status < 0 {
		log.Printf("ERROR appl: fetch of <%s> failed", url)
		if a.cfg.SmartErrors {
			// Hand back a real deck with a way out instead of
			// a bare failure, so the client isn't stranded.
			status = http.StatusOK
			content.Type = wmlMediaType

			var sess Session
			if sessionID != -1 {
				sess = a.wsp.SessionByID(sessionID)
			}
			switch {
			case sess != nil && sess.RefererURL() != "":
				content.Body = errorRequestingBack(url, sess.RefererURL())
			case a.cfg.DeviceHome != "":
				content.Body = errorRequestingBack(url, a.cfg.DeviceHome)
			default:
				content.Body = errorRequesting(url)
			}

			if a.conv.Convert(&content) == convert.Converted {
				headers.MarkTransformation(hdrs, content.Body, content.Type)
			}
		} else {
			status = http.StatusBadGateway
			content.Type = "text/plain"
			content.Body = []byte{}
		}
	} else {
		content.Type, content.Charset = headers.ContentType(hdrs)
		a.logf("appl: <%s> (%s, charset=%q) %d", url, content.Type, content.Charset, status)

		if sessionID != -1 {
			if s := a.wsp.SessionByID(sessionID); s != nil {
				getCookies(hdrs, s, url)
			}
		}

		switch a.conv.Convert(&content) {
		case convert.Failed:
			log.Printf("WARNING appl: conversion of <%s> (%s) failed", url, content.Type)
		case convert.Converted:
			headers.MarkTransformation(hdrs, content.Body, content.Type)
			if sessionID != -1 {
				if s := a.wsp.SessionByID(sessionID); s != nil {
					s.SetRefererURL(url)
				} else {
					log.Printf("ERROR appl: session %d gone, referer for <%s> lost", sessionID, url)
				}
			}
		}
	}

	headers.RemoveHop(hdrs)
	hdrs.Del("X-WAP.TOD")
	if xWapTOD {
		hdrs.Add("X-WAP.TOD", headers.HTTPDate(time.Now()))
	}

	if content.Body == nil {
		content.Body = []byte{}
	}

	// Some clients drop the whole session over an error reply in a
	// type they never accepted; strip the entity instead.
	if !successClass(status) && !headers.TypeAccepted(reqHeaders, content.Type) {
		log.Printf("WARNING appl: %d reply for <%s> in unaccepted type %s; body dropped",
			status, url, content.Type)
		content.Type = "text/plain"
		content.Body = []byte{}
		headers.MarkTransformation(hdrs, content.Body, content.Type)
	}

	if clientSDUSize > 0 && int64(len(content.Body)) > clientSDUSize {
		if successClass(status) {
			status = http.StatusBadGateway
		}
		log.Printf("WARNING appl: reply for <%s> exceeds client SDU size %d; body dropped",
			url, clientSDUSize)
		content.Body = []byte{}
		headers.MarkTransformation(hdrs, content.Body, content.Type)
	}

	switch e := orig.(type) {
	case *event.MethodInvokeInd:
		a.wsp.DispatchSession(&event.MethodResultReq{
			ServerTransactionID: e.ServerTransactionID,
			Status:              status,
			ResponseHeaders:     hdrs,
			ResponseBody:        content.Body,
			SessionID:           sessionID,
		})
	case *event.UnitMethodInvokeInd:
		a.wsp.DispatchUnit(&event.UnitMethodResultReq{
			AddrTuple:       e.AddrTuple,
			TransactionID:   e.TransactionID,
			Status:          status,
			ResponseHeaders: hdrs,
			ResponseBody:    content.Body,
		})
	default:
		log.Panicf("appl: returnReply of %s", orig.EventName())
	}

	atomic.AddInt64(&a.fetches, -1)
}

func successClass(status int) bool {
	return 200 <= status && status < 300
}

// addConvertedAccepts advertises the source type of every conversion
// whose result the client accepts, so origin servers can serve us the
// source form.
func (a *App) addConvertedAccepts(h http.Header) {
	for _, pair := range a.conv.ResultTypes() {
		src, result := pair[0], pair[1]
		if headers.TypeAccepted(h, result) && !headers.TypeAccepted(h, src) {
			h.Add("Accept", src)
		}
	}
}

func (a *App) addCharsetHeaders(h http.Header) {
	for _, cs := range a.charsets {
		if !headers.CharsetAccepted(h, cs) {
			h.Add("Accept-Charset", cs)
		}
	}
}

func addNetworkInfo(h http.Header, t event.AddrTuple) {
	if t.Remote.Address == "" {
		return
	}
	h.Add("X_Network_Info", t.Remote.Address)
}

func addClientSDUSize(h http.Header, size int64) {
	if size <= 0 {
		return
	}
	h.Add("X-WAP-Client-SDU-Size", strconv.FormatInt(size, 10))
}

func (a *App) addVia(h http.Header) {
	host := a.cfg.Hostname
	if host == "" {
		host = "localhost"
	}
	h.Add("Via", "WAP/1.1 "+host+" ("+a.cfg.GatewayName+")")
}

func addSessionID(h http.Header, sid int64) {
	if sid == -1 {
		return
	}
	h.Add("X-WAP-Session-ID", strconv.FormatInt(sid, 10))
}

func addRefererURL(h http.Header, url string) {
	if url == "" {
		return
	}
	h.Add("Referer", url)
}

// setCookies copies the session jar's cookies for the URL into the
// outgoing headers.
func setCookies(h http.Header, s Session, rawURL string) {
	jar := s.CookieJar()
	if jar == nil {
		return
	}
	u, err := neturl.Parse(rawURL)
	if err != nil {
		log.Printf("ERROR appl: bad URL %q for cookies: %v", rawURL, err)
		return
	}
	for _, c := range jar.Cookies(u) {
		h.Add("Cookie", c.String())
	}
}

// getCookies stores any Set-Cookie headers from a reply in the
// session's jar.
func getCookies(h http.Header, s Session, rawURL string) {
	jar := s.CookieJar()
	if jar == nil {
		return
	}
	u, err := neturl.Parse(rawURL)
	if err != nil {
		log.Printf("ERROR appl: bad URL %q for cookies: %v", rawURL, err)
		return
	}
	resp := http.Response{Header: h}
	if cs := resp.Cookies(); 0 < len(cs) {
		jar.SetCookies(u, cs)
	}
}

func xmlEscape(s string) string {
	return strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;",
		`"`, "&quot;", "'", "&apos;",
	).Replace(s)
}

func errorRequesting(url string) []byte {
	return []byte(`<?xml version="1.0"?>` +
		`<!DOCTYPE wml PUBLIC "-//WAPFORUM//DTD 1.1//EN" "http://www.wapforum.org/DTD/wml_1.1.xml">` +
		`<wml><card id="error"><p>Error: could not fetch ` + xmlEscape(url) +
		`</p></card></wml>`)
}

func errorRequestingBack(url, back string) []byte {
	return []byte(`<?xml version="1.0"?>` +
		`<!DOCTYPE wml PUBLIC "-//WAPFORUM//DTD 1.1//EN" "http://www.wapforum.org/DTD/wml_1.1.xml">` +
		`<wml><card id="error"><p>Error: could not fetch ` + xmlEscape(url) +
		`</p><do type="accept" label="Back"><go href="` + xmlEscape(back) +
		`"/></do></card></wml>`)
}
