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

package event

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire form used by the couplings: the primitive name
// plus the primitive's own fields.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// makers gives a fresh zero value for each primitive so Unmarshal can
// decode into the right variant.
var makers = map[string]func() Event{
	(&MethodInvokeInd{}).EventName():     func() Event { return &MethodInvokeInd{} },
	(&MethodInvokeRes{}).EventName():     func() Event { return &MethodInvokeRes{} },
	(&UnitMethodInvokeInd{}).EventName(): func() Event { return &UnitMethodInvokeInd{} },
	(&MethodResultReq{}).EventName():     func() Event { return &MethodResultReq{} },
	(&UnitMethodResultReq{}).EventName(): func() Event { return &UnitMethodResultReq{} },
	(&MethodResultCnf{}).EventName():     func() Event { return &MethodResultCnf{} },
	(&MethodAbortInd{}).EventName():      func() Event { return &MethodAbortInd{} },
	(&ConnectInd{}).EventName():          func() Event { return &ConnectInd{} },
	(&ConnectRes{}).EventName():          func() Event { return &ConnectRes{} },
	(&DisconnectInd{}).EventName():       func() Event { return &DisconnectInd{} },
	(&SuspendInd{}).EventName():          func() Event { return &SuspendInd{} },
	(&ResumeInd{}).EventName():           func() Event { return &ResumeInd{} },
	(&ResumeRes{}).EventName():           func() Event { return &ResumeRes{} },
	(&ConfirmedPushCnf{}).EventName():    func() Event { return &ConfirmedPushCnf{} },
	(&PushAbortInd{}).EventName():        func() Event { return &PushAbortInd{} },
	(&PomConnectInd{}).EventName():       func() Event { return &PomConnectInd{} },
	(&PomConnectRes{}).EventName():       func() Event { return &PomConnectRes{} },
	(&PomDisconnectInd{}).EventName():    func() Event { return &PomDisconnectInd{} },
	(&PomSuspendInd{}).EventName():       func() Event { return &PomSuspendInd{} },
	(&PomResumeInd{}).EventName():        func() Event { return &PomResumeInd{} },
	(&PoConfirmedPushCnf{}).EventName():  func() Event { return &PoConfirmedPushCnf{} },
	(&PoPushAbortInd{}).EventName():      func() Event { return &PoPushAbortInd{} },
}

// Marshal renders an event as a JSON envelope.
func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&envelope{
		Event: e.EventName(),
		Data:  data,
	})
}

// Unmarshal parses a JSON envelope into the named event variant.
func Unmarshal(bs []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(bs, &env); err != nil {
		return nil, err
	}
	maker, have := makers[env.Event]
	if !have {
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
	e := maker()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}
