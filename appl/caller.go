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
	"bytes"
	"context"
	"io/ioutil"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Comcast/wapgate/event"
)

// FetchEntry is a correlation entry: the protocol context saved when a
// fetch is dispatched.  The caller carries it, opaquely, from
// StartRequest to the FetchResult it hands back, so a returning HTTP
// result can be finished without any shared lookup table.
type FetchEntry struct {
	ClientSDUSize  int64
	Event          event.Event
	SessionID      int64
	URL            string
	XWapTOD        bool
	RequestHeaders http.Header
}

// FetchResult is one finished HTTP request.  Status is negative when
// the transport itself failed (DNS, connect, read); then Headers and
// Body are nil.
type FetchResult struct {
	Status  int
	URL     string // final URL after redirects
	Headers http.Header
	Body    []byte
	Entry   *FetchEntry
}

// Caller performs HTTP requests asynchronously.  StartRequest never
// blocks on the network; results arrive via ReceiveResult in
// completion order.  After SignalShutdown, ReceiveResult drains the
// remaining in-flight results and then reports done.
type Caller interface {
	StartRequest(ctx context.Context, method, url string, hdrs http.Header, body []byte, entry *FetchEntry)
	ReceiveResult() (*FetchResult, bool)
	SignalShutdown()
}

// HTTPCaller is the production Caller, on net/http.
type HTTPCaller struct {
	client  *http.Client
	results chan *FetchResult

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewHTTPCaller makes an HTTPCaller.  A timeout of 0 means a default
// of five minutes per request.
func NewHTTPCaller(timeout time.Duration) *HTTPCaller {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPCaller{
		client:  &http.Client{Timeout: timeout},
		results: make(chan *FetchResult, 64),
	}
}

// StartRequest launches the request in its own goroutine.
func (c *HTTPCaller) StartRequest(ctx context.Context, method, url string, hdrs http.Header, body []byte, entry *FetchEntry) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		log.Printf("ERROR appl: request for %s after caller shutdown; dropped", url)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.results <- c.do(ctx, method, url, hdrs, body, entry)
	}()
}

func (c *HTTPCaller) do(ctx context.Context, method, url string, hdrs http.Header, body []byte, entry *FetchEntry) *FetchResult {
	failed := &FetchResult{Status: -1, URL: url, Entry: entry}

	var rdr *bytes.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		log.Printf("ERROR appl: bad request for %s: %v", url, err)
		return failed
	}
	for name, vals := range hdrs {
		for _, v := range vals {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("ERROR appl: fetch of %s failed: %v", url, err)
		return failed
	}
	defer resp.Body.Close()

	bs, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		log.Printf("ERROR appl: reading %s failed: %v", url, err)
		return failed
	}

	return &FetchResult{
		Status:  resp.StatusCode,
		URL:     resp.Request.URL.String(),
		Headers: resp.Header,
		Body:    bs,
		Entry:   entry,
	}
}

// ReceiveResult blocks for the next result.  The second value is false
// once the caller has shut down and everything in flight has drained.
func (c *HTTPCaller) ReceiveResult() (*FetchResult, bool) {
	r, ok := <-c.results
	return r, ok
}

// SignalShutdown stops accepting new requests.  Requests already in
// flight still deliver their results.
func (c *HTTPCaller) SignalShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.shutdown = true
	go func() {
		c.wg.Wait()
		close(c.results)
	}()
}
