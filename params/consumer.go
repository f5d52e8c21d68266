/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package params

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/zkp/providers"
)

const defaultNatsStream = "fold"

const natsParamsGenerateSubject = "fold.params.generate"
const natsParamsGenerateCompleteSubject = "fold.params.generate.complete"
const natsParamsGenerateFailedSubject = "fold.params.generate.failed"

const natsParamsGenerateMaxInFlight = 4
const generateParamsAckWait = time.Hour * 1
const generateParamsMaxDeliveries = 5

// GenerateRequest is the payload of a params generation message
type GenerateRequest struct {
	CircuitLocation string `json:"circuit_location"`
	DeriveKeys      bool   `json:"derive_keys"`
}

// GenerateResult is published once a generation request has been handled
type GenerateResult struct {
	CircuitLocation string  `json:"circuit_location"`
	Circuit         string  `json:"circuit,omitempty"`
	Params          string  `json:"params,omitempty"`
	Keys            bool    `json:"keys"`
	Error           *string `json:"error,omitempty"`
}

// RequireNatsSubscriptions starts the params generation consumers for m; it
// is a no-op unless NATS streaming subscriptions are enabled
func RequireNatsSubscriptions(m *Manager, wg *sync.WaitGroup) {
	if !common.ConsumeNATSStreamingSubscriptions {
		common.Log.Debug("params package consumer configured to skip NATS streaming subscription setup")
		return
	}

	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			generateParamsAckWait,
			natsParamsGenerateSubject,
			natsParamsGenerateSubject,
			natsParamsGenerateSubject,
			m.consumeGenerateParamsMsg,
			generateParamsAckWait,
			natsParamsGenerateMaxInFlight,
			generateParamsMaxDeliveries,
			nil,
		)
	}
}

func (m *Manager) consumeGenerateParamsMsg(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warningf("recovered during params generation; %s", r)
			msg.Nak()
		}
	}()

	m.log.Debugf("consuming %d-byte NATS params generation message on subject: %s", len(msg.Data), msg.Subject)

	req := &GenerateRequest{}
	err := json.Unmarshal(msg.Data, req)
	if err != nil {
		m.log.Warningf("failed to unmarshal params generation message; %s", err.Error())
		msg.Nak()
		return
	}

	if req.CircuitLocation == "" {
		m.log.Warning("failed to resolve circuit_location during params generation message handler")
		msg.Nak()
		return
	}

	result := m.HandleGenerateRequest(context.Background(), req)
	payload, _ := json.Marshal(result)

	if result.Error == nil {
		m.log.Debugf("params generation completed for circuit %s", result.Circuit)
		natsutil.NatsJetstreamPublish(natsParamsGenerateCompleteSubject, payload)
		msg.Ack()
	} else {
		m.log.Warningf("params generation failed for circuit at %s; %s", req.CircuitLocation, *result.Error)
		natsutil.NatsJetstreamPublish(natsParamsGenerateFailedSubject, payload)
		msg.Nak()
	}
}

// HandleGenerateRequest loads the requested circuit, generates its params
// and optionally derives the compression keys
func (m *Manager) HandleGenerateRequest(ctx context.Context, req *GenerateRequest) *GenerateResult {
	result := &GenerateResult{CircuitLocation: req.CircuitLocation}

	var params *providers.PublicParams

	circuit, err := m.engine.LoadCircuit(ctx, req.CircuitLocation)
	if err == nil {
		result.Circuit = circuit.Digest
		params, err = m.GenerateParams(ctx, circuit)
	}

	if err == nil {
		result.Params = params.Key
		if req.DeriveKeys {
			_, _, err = m.DeriveKeys(ctx, params)
			result.Keys = err == nil
		}
	}

	if err != nil {
		result.Error = common.StringOrNil(err.Error())
	}

	return result
}
