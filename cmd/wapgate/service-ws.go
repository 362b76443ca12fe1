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

package main

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/Comcast/wapgate/event"

	"github.com/gorilla/websocket"
)

// WebSocketService exposes the event couplings at /ws/api.  Inbound
// messages are event envelopes; every emitted event is broadcast to
// all connected clients.
func (s *Service) WebSocketService(ctx context.Context) error {

	var upgrader = websocket.Upgrader{} // use default options

	conns := sync.Map{}

	s.AddEmitter(func(js []byte) {
		conns.Range(func(k, v interface{}) bool {
			c := v.(chan []byte)
			select {
			case c <- js:
			default:
				log.Printf("%v events blocked", k)
			}
			return true
		})
	})

	api := func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Service.WebSocketService connection")

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error", err)
			return
		}
		defer c.Close()

		ctl := make(chan bool)
		defer close(ctl)

		in := make(chan []byte, 32)
		defer close(in)

		id := c.RemoteAddr().String()
		conns.Store(id, in)
		defer conns.Delete(id)

		go func() {
		LOOP:
			for {
				select {
				case <-ctl:
					break LOOP
				case <-ctx.Done():
					break LOOP
				case js := <-in:
					if js == nil {
						break LOOP
					}
					if err := c.WriteMessage(websocket.TextMessage, js); err != nil {
						log.Println("Service.WebSocketService write:", err)
					}
				}
			}
		}()

		for {
			mt, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read error", err)
				break
			}

			e, err := event.Unmarshal(message)
			if err != nil {
				if err := c.WriteMessage(mt, []byte(`{"error":"can't parse"}`)); err != nil {
					log.Println("write (err)", err)
				}
				continue
			}
			s.Receive(e)
		}
	}

	http.HandleFunc("/ws/api", api)

	return nil
}
