// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package messenger

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrInvalidRequest = errors.New("invalid revalue request")

// RevalueRequest asks a worker to recompute the analysis of one portfolio
type RevalueRequest struct {
	UserID      string    `json:"user_id"`
	PortfolioID uuid.UUID `json:"portfolio_id"`
	RequestTime time.Time `json:"request_time"`
}

// EncodeRevalueRequest builds the message body for a revalue request
func EncodeRevalueRequest(userID string, portfolioID uuid.UUID) ([]byte, error) {
	if userID == "" || portfolioID == uuid.Nil {
		return nil, ErrInvalidRequest
	}
	req := RevalueRequest{
		UserID:      userID,
		PortfolioID: portfolioID,
		RequestTime: time.Now().UTC(),
	}
	return json.Marshal(req)
}

// DecodeRevalueRequest parses a message body produced by EncodeRevalueRequest
func DecodeRevalueRequest(data []byte) (*RevalueRequest, error) {
	req := &RevalueRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if req.UserID == "" || req.PortfolioID == uuid.Nil {
		return nil, ErrInvalidRequest
	}
	return req, nil
}

// PublishRevalueRequest queues a revalue request on the JetStream subject
func PublishRevalueRequest(userID string, portfolioID uuid.UUID) error {
	if jetStream == nil {
		return ErrNotConnected
	}

	subject := viper.GetString("nats.revalue_subject")
	data, err := EncodeRevalueRequest(userID, portfolioID)
	if err != nil {
		log.Error().Err(err).Str("UserID", userID).Str("PortfolioID", portfolioID.String()).Msg("could not serialize revalue request")
		return err
	}

	if _, err := jetStream.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("Subject", subject).Msg("could not publish a revalue request")
		return err
	}

	return nil
}

// FetchRevalueRequest pulls the next pending request. A nil message with a nil
// error means the queue is empty.
func FetchRevalueRequest() (*nats.Msg, *RevalueRequest, error) {
	if jetStream == nil {
		return nil, nil, ErrNotConnected
	}

	sub, err := jetStream.PullSubscribe(viper.GetString("nats.revalue_subject"), viper.GetString("nats.revalue_consumer"))
	if err != nil {
		log.Error().Err(err).Msg("could not connect to durable consumer (note: make sure the consumer already exists)")
		return nil, nil, err
	}

	msgs, err := sub.Fetch(1, nats.MaxWait(5*time.Second))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			log.Info().Msg("no revalue requests in queue")
			return nil, nil, nil
		}
		log.Error().Err(err).Msg("could not fetch new messages")
		return nil, nil, err
	}

	if len(msgs) == 0 {
		log.Info().Msg("no revalue requests in queue")
		return nil, nil, nil
	}

	req, err := DecodeRevalueRequest(msgs[0].Data)
	if err != nil {
		log.Error().Err(err).Bytes("Body", msgs[0].Data).Msg("discarding malformed revalue request")
		if err := msgs[0].Term(); err != nil {
			log.Warn().Err(err).Msg("could not terminate malformed message")
		}
		return nil, nil, err
	}

	return msgs[0], req, nil
}
