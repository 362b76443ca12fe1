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

// Package headers has the header-manipulation primitives shared by the
// fetch pipeline, the response finisher, and the push relay.
package headers

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// hopByHop are the headers that are only meaningful between adjacent
// transport participants.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Combine merges src into dst.  A name present in src replaces all of
// dst's values for that name; src's value order is preserved.
func Combine(dst, src http.Header) {
	for name := range src {
		dst.Del(name)
	}
	for name, vals := range src {
		for _, v := range vals {
			dst.Add(name, v)
		}
	}
}

// RemoveHop strips hop-by-hop headers, including any named by a
// Connection header.
func RemoveHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}

// Remove deletes all headers with the given name, reporting whether
// any were present.
func Remove(h http.Header, name string) bool {
	if len(h.Values(name)) == 0 {
		return false
	}
	h.Del(name)
	return true
}

// Split partitions h: the values for name are removed from h and
// returned.  A nil return means no such headers existed.
func Split(h http.Header, name string) []string {
	vals := h.Values(name)
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	copy(out, vals)
	h.Del(name)
	return out
}

// accepts reports whether any comma-separated token in the named
// headers equals want (parameters ignored, case-insensitive).
func accepts(h http.Header, name, want string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			tok := strings.TrimSpace(part)
			if i := strings.IndexByte(tok, ';'); 0 <= i {
				tok = strings.TrimSpace(tok[:i])
			}
			if strings.EqualFold(tok, want) {
				return true
			}
		}
	}
	return false
}

// TypeAccepted reports whether the Accept headers claim the given
// media type.
func TypeAccepted(h http.Header, mediaType string) bool {
	return accepts(h, "Accept", mediaType)
}

// CharsetAccepted reports whether the Accept-Charset headers claim the
// given charset.
func CharsetAccepted(h http.Header, charset string) bool {
	return accepts(h, "Accept-Charset", charset)
}

// ContentType extracts the media type and charset from a Content-Type
// header.  A missing or unparsable header yields
// "application/octet-stream" and an empty charset.
func ContentType(h http.Header) (mediaType, charset string) {
	v := h.Get("Content-Type")
	if v == "" {
		return "application/octet-stream", ""
	}
	mt, params, err := mime.ParseMediaType(v)
	if err != nil {
		return "application/octet-stream", ""
	}
	return mt, params["charset"]
}

// MarkTransformation updates Content-Type and Content-Length to
// describe a body that was rewritten in transit.
func MarkTransformation(h http.Header, body []byte, mediaType string) {
	h.Set("Content-Type", mediaType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Del("Transfer-Encoding")
}

// Pack normalizes a header collection for transport by joining
// duplicate values.  Set-Cookie is left alone; its values cannot be
// folded.
func Pack(h http.Header) {
	for name, vals := range h {
		if len(vals) < 2 || name == "Set-Cookie" {
			continue
		}
		h.Set(name, strings.Join(vals, ", "))
	}
}

// HTTPDate renders t in the format HTTP headers want.
func HTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
