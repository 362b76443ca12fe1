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

// Package urlmap rewrites outgoing request URLs according to an
// ordered, administrator-configured rule table.
//
// A trailing '*' on a rule's input pattern means prefix matching; its
// absence means the whole URL must match.  A trailing '*' on the
// output means the unmatched remainder of the input is appended to the
// output.  Matching is case-insensitive, first match wins, and an
// unmatched URL is returned unchanged.
package urlmap

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// DeviceHome is the pseudo-URL handsets request for their home deck.
const DeviceHome = "DEVICE:home"

// ErrBadDirective is returned when a map-url directive doesn't have
// the two required tokens.
var ErrBadDirective = errors.New("map-url directive needs two tokens")

type rule struct {
	in        string // pattern without a trailing '*'
	out       string // replacement without a trailing '*'
	inPrefix  bool
	outPrefix bool
}

// Table is an ordered URL rewrite table.  Configure it at startup;
// Map is read-only and safe for concurrent use afterward.
type Table struct {
	rules []rule
}

// NewTable makes an empty rewrite table.
func NewTable() *Table {
	return &Table{}
}

// Add appends a rule mapping src to dst.
func (t *Table) Add(src, dst string) error {
	if src == "" {
		return errors.New("empty incoming pattern")
	}
	if dst == "" {
		return errors.New("empty replacement")
	}

	r := rule{in: src, out: dst}
	if strings.HasSuffix(src, "*") {
		r.inPrefix = true
		r.in = src[:len(src)-1]
	}
	if strings.HasSuffix(dst, "*") {
		r.outPrefix = true
		r.out = dst[:len(dst)-1]
	}

	t.rules = append(t.rules, r)
	return nil
}

// Config consumes one "map-url" directive: two whitespace-separated
// tokens, source pattern then destination.
func (t *Table) Config(directive string) error {
	fields := strings.Fields(directive)
	if len(fields) != 2 {
		return ErrBadDirective
	}
	return t.Add(fields[0], fields[1])
}

// ConfigDeviceHome maps the device-home pseudo-URL to the given
// destination.  Both sides are prefix rules; a '*' is forced onto the
// destination if the administrator left it off.
func (t *Table) ConfigDeviceHome(dst string) error {
	if dst == "" {
		return errors.New("empty device-home destination")
	}
	if !strings.HasSuffix(dst, "*") {
		dst += "*"
	}
	return t.Add(DeviceHome+"*", dst)
}

// Map rewrites url via the first matching rule, or returns it
// unchanged.
func (t *Table) Map(url string) string {
	for _, r := range t.rules {
		if !r.matches(url) {
			continue
		}
		out := r.out
		if r.inPrefix && r.outPrefix {
			out += url[len(r.in):]
		}
		log.Printf("urlmap: url <%s> mapped to <%s>", url, out)
		return out
	}
	return url
}

func (r *rule) matches(url string) bool {
	if r.inPrefix {
		return len(r.in) <= len(url) && strings.EqualFold(url[:len(r.in)], r.in)
	}
	return strings.EqualFold(url, r.in)
}

// Len returns the number of configured rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules renders the rules the way they were configured, for the status
// page and for logging after configuration.
func (t *Table) Rules() []string {
	acc := make([]string, 0, len(t.rules))
	for _, r := range t.rules {
		in, out := r.in, r.out
		if r.inPrefix {
			in += "*"
		}
		if r.outPrefix {
			out += "*"
		}
		acc = append(acc, fmt.Sprintf("%s %s", in, out))
	}
	return acc
}
