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

// Package tools has operator-facing helpers that aren't part of the
// gateway's data path.
package tools

import (
	"fmt"
	"io"
	"strings"
	"time"

	md "github.com/russross/blackfriday/v2"
)

// Status is a snapshot of the gateway for the status page.
type Status struct {
	GatewayName string
	Hostname    string
	Started     time.Time

	// Load is the application layer's queued plus in-flight work.
	Load int64

	SmartErrors bool
	DeviceHome  string

	// URLRules are the rewrite rules, rendered as configured.
	URLRules []string

	// Converters are the registered (source, produced) type pairs.
	Converters [][2]string

	Charsets []string

	// DLRMessages is the pending delivery report count, or -1 when
	// no report storage is configured.
	DLRMessages int64
}

// Markdown renders the snapshot as a Markdown document.
func (s *Status) Markdown() []byte {
	var b strings.Builder
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	f("# %s", s.GatewayName)
	f("")
	f("Host: `%s`", s.Hostname)
	if !s.Started.IsZero() {
		f("")
		f("Up since %s (%s).", s.Started.Format(time.RFC1123),
			time.Since(s.Started).Round(time.Second))
	}
	f("")
	f("Load: %d", s.Load)
	f("")
	if s.SmartErrors {
		home := s.DeviceHome
		if home == "" {
			home = "(none)"
		}
		f("Smart errors are on; device home is `%s`.", home)
	} else {
		f("Smart errors are off.")
	}

	f("")
	f("## URL rewriting")
	f("")
	if len(s.URLRules) == 0 {
		f("No rules.")
	}
	for _, r := range s.URLRules {
		f("1. `%s`", r)
	}

	f("")
	f("## Content conversion")
	f("")
	if len(s.Converters) == 0 {
		f("No converters.")
	}
	for _, pair := range s.Converters {
		f("1. `%s` to `%s`", pair[0], pair[1])
	}
	if 0 < len(s.Charsets) {
		f("")
		f("Charsets: `%s`", strings.Join(s.Charsets, "`, `"))
	}

	f("")
	f("## Delivery reports")
	f("")
	if s.DLRMessages < 0 {
		f("No report storage configured.")
	} else {
		f("%d pending.", s.DLRMessages)
	}

	return []byte(b.String())
}

// RenderStatusHTML writes the snapshot's HTML body.
func RenderStatusHTML(s *Status, out io.Writer) error {
	_, err := fmt.Fprintf(out, `<div class="status doc">%s</div>`, md.Run(s.Markdown()))
	return err
}

// RenderStatusPage writes a complete status page.
func RenderStatusPage(s *Status, out io.Writer, cssFiles []string) error {
	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, s.GatewayName)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
`)

	if err := RenderStatusHTML(s, out); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, `
  </body>
</html>
`)
	return err
}
