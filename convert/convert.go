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

// Package convert maps response bodies from source content types to
// the compiled binary forms that constrained clients want.
package convert

import (
	"log"
)

// Content is an ephemeral per-response record handed to converters.
type Content struct {
	Body    []byte
	Type    string
	Charset string
	URL     string
}

// Func turns a Content's body into its converted form, or fails.
type Func func(*Content) ([]byte, error)

// Entry is one row of the converter table.  No mutable state.
type Entry struct {
	Type       string // source MIME type
	ResultType string // produced MIME type
	Convert    Func
}

// Outcome reports what Convert did.
type Outcome int

const (
	// NoConverter means no entry's source type matched.
	NoConverter Outcome = iota

	// Converted means a transform succeeded and the Content was
	// replaced in place.
	Converted

	// Failed means at least one entry matched but every matching
	// transform failed.
	Failed
)

// Registry is a fixed, ordered converter table.  Read-only after
// construction.
type Registry struct {
	entries []Entry
}

// NewRegistry makes a registry with the given entries, kept in order.
func NewRegistry(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

// Convert scans the table for entries matching c.Type.  The first
// transform that succeeds replaces c.Body and c.Type and wins; a
// failing transform is remembered but scanning continues, in case a
// later entry for the same type can serve.
func (r *Registry) Convert(c *Content) Outcome {
	failed := false
	for _, e := range r.entries {
		if e.Type != c.Type {
			continue
		}
		body, err := e.Convert(c)
		if err != nil {
			log.Printf("convert: %s converter failed: %s", e.Type, err)
			failed = true
			continue
		}
		c.Body = body
		c.Type = e.ResultType
		return Converted
	}
	if failed {
		return Failed
	}
	return NoConverter
}

// ResultTypes returns each entry's (source, produced) type pair, used
// to synthesize Accept headers for the back end.
func (r *Registry) ResultTypes() [][2]string {
	acc := make([][2]string, 0, len(r.entries))
	for _, e := range r.entries {
		acc = append(acc, [2]string{e.Type, e.ResultType})
	}
	return acc
}
