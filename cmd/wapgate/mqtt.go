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
	"fmt"
	"log"
	"time"

	"github.com/Comcast/wapgate/event"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTCoupling talks to an MQTT broker: inbound event envelopes
// arrive on the subscription topic, and emitted events are published
// on the outbound topic.
type MQTTCoupling struct {
	Broker    string
	Port      int
	ClientID  string
	Username  string
	Password  string
	KeepAlive int
	Reconnect bool

	SubTopic string
	PubTopic string
	QoS      byte

	client mqtt.Client
}

// Start connects to the broker, subscribes, and registers the
// outbound publisher.
func (c *MQTTCoupling) Start(ctx context.Context, s *Service) error {
	opts := mqtt.NewClientOptions()

	broker := fmt.Sprintf("%s:%d", c.Broker, c.Port)
	opts.AddBroker(broker)
	opts.SetClientID(c.ClientID)
	opts.SetKeepAlive(time.Second * time.Duration(c.KeepAlive))

	opts.Username = c.Username
	opts.Password = c.Password
	opts.AutoReconnect = c.Reconnect

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost")
	}

	opts.DefaultPublishHandler = func(client mqtt.Client, msg mqtt.Message) {
		c.inHandler(ctx, s, msg)
	}

	c.client = mqtt.NewClient(opts)

	if t := c.client.Connect(); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	log.Printf("MQTT connected to %s", broker)

	if c.SubTopic != "" {
		if t := c.client.Subscribe(c.SubTopic, c.QoS, func(client mqtt.Client, msg mqtt.Message) {
			c.inHandler(ctx, s, msg)
		}); t.Wait() && t.Error() != nil {
			return t.Error()
		}
		log.Printf("MQTT subscribed to %s", c.SubTopic)
	}

	if c.PubTopic != "" {
		s.AddEmitter(func(js []byte) {
			if t := c.client.Publish(c.PubTopic, c.QoS, false, js); t.Wait() && t.Error() != nil {
				log.Printf("MQTT publish error: %v", t.Error())
			}
		})
	}

	return nil
}

// Stop disconnects from the broker.
func (c *MQTTCoupling) Stop(quiesce uint) {
	if c.client != nil {
		c.client.Disconnect(quiesce)
	}
}

func (c *MQTTCoupling) inHandler(ctx context.Context, s *Service, msg mqtt.Message) {
	e, err := event.Unmarshal(msg.Payload())
	if err != nil {
		log.Printf("ERROR mqtt: can't parse event on %s: %v", msg.Topic(), err)
		return
	}
	s.Receive(e)
}
