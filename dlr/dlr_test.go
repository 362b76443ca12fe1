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

package dlr

import (
	"context"
	"testing"
)

// testStorage runs every Storage implementation through the same
// paces.
func testStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if n, err := s.Messages(ctx); err != nil || n != 0 {
		t.Fatalf("fresh storage: n=%d err=%v", n, err)
	}

	e := &Entry{
		SMSC:        "smsc1",
		Timestamp:   "2026-08-23 12:00:00",
		Source:      "12345",
		Destination: "447700900000",
		Service:     "news",
		URL:         "http://www.example.com/dlr?id=1",
		BoxID:       "box1",
		Mask:        3,
	}
	if err := s.Add(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, &Entry{
		SMSC:        "smsc1",
		Timestamp:   "2026-08-23 12:00:01",
		Destination: "447700900001",
		Mask:        1,
	}); err != nil {
		t.Fatal(err)
	}

	if n, err := s.Messages(ctx); err != nil || n != 2 {
		t.Fatalf("after adds: n=%d err=%v", n, err)
	}

	got, err := s.Get(ctx, e.SMSC, e.Timestamp, e.Destination)
	if err != nil {
		t.Fatal(err)
	}
	if got.Service != "news" || got.URL != e.URL || got.Mask != 3 || got.BoxID != "box1" {
		t.Fatalf("got %#v", got)
	}

	if _, err := s.Get(ctx, "smsc1", "never", "447700900000"); err != ErrNotFound {
		t.Fatalf("err %v", err)
	}

	if err := s.Update(ctx, e.SMSC, e.Timestamp, e.Destination, 8); err != nil {
		t.Fatal(err)
	}
	got, err = s.Get(ctx, e.SMSC, e.Timestamp, e.Destination)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != 8 {
		t.Fatalf("status %d", got.Status)
	}

	if err := s.Update(ctx, "smsc1", "never", "447700900000", 8); err != ErrNotFound {
		t.Fatalf("err %v", err)
	}

	if err := s.Remove(ctx, e.SMSC, e.Timestamp, e.Destination); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, e.SMSC, e.Timestamp, e.Destination); err != ErrNotFound {
		t.Fatalf("err %v", err)
	}
	if n, err := s.Messages(ctx); err != nil || n != 1 {
		t.Fatalf("after remove: n=%d err=%v", n, err)
	}

	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n, err := s.Messages(ctx); err != nil || n != 0 {
		t.Fatalf("after flush: n=%d err=%v", n, err)
	}
}
