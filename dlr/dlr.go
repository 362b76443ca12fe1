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

// Package dlr stores delivery reports for messages the gateway has
// relayed.  A report is keyed by the originating connection, the
// submission timestamp, and the destination address; it lives in
// storage until the matching status report arrives and is resolved.
package dlr

import (
	"context"
	"errors"
)

// Entry is one pending delivery report.
type Entry struct {
	SMSC        string `json:"smsc"`
	Timestamp   string `json:"ts"`
	Source      string `json:"src,omitempty"`
	Destination string `json:"dst"`
	Service     string `json:"service,omitempty"`
	URL         string `json:"url,omitempty"`
	BoxID       string `json:"boxId,omitempty"`
	Mask        int    `json:"mask"`
	Status      int    `json:"status"`
}

// ErrNotFound reports a lookup for a report that isn't stored.
var ErrNotFound = errors.New("dlr: no such entry")

// Storage persists pending delivery reports.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// Add stores a new pending report.
	Add(ctx context.Context, e *Entry) error

	// Get finds the report for the key, or ErrNotFound.
	Get(ctx context.Context, smsc, ts, dst string) (*Entry, error)

	// Update sets the status of a stored report.
	Update(ctx context.Context, smsc, ts, dst string, status int) error

	// Remove deletes a stored report, or returns ErrNotFound.
	Remove(ctx context.Context, smsc, ts, dst string) error

	// Messages counts the stored reports.
	Messages(ctx context.Context) (int64, error)

	// Flush deletes every stored report.
	Flush(ctx context.Context) error

	Close() error
}
