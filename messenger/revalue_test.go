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

package messenger_test

import (
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gridbazaar/gb-api/messenger"
)

var _ = Describe("Revalue requests", func() {
	portfolioID := uuid.MustParse("7d3b2a10-4c5e-4f6a-8b7c-9d0e1f2a1c01")

	It("round trips through the wire format", func() {
		data, err := messenger.EncodeRevalueRequest("auth0|6172", portfolioID)
		Expect(err).To(BeNil())
		Expect(string(data)).To(ContainSubstring(`"portfolio_id":"7d3b2a10-4c5e-4f6a-8b7c-9d0e1f2a1c01"`))

		req, err := messenger.DecodeRevalueRequest(data)
		Expect(err).To(BeNil())
		Expect(req.UserID).To(Equal("auth0|6172"))
		Expect(req.PortfolioID).To(Equal(portfolioID))
		Expect(req.RequestTime.IsZero()).To(BeFalse())
	})

	It("rejects incomplete requests", func() {
		_, err := messenger.EncodeRevalueRequest("", portfolioID)
		Expect(err).To(MatchError(messenger.ErrInvalidRequest))
		_, err = messenger.DecodeRevalueRequest([]byte(`{"user_id":"auth0|6172"}`))
		Expect(err).To(MatchError(messenger.ErrInvalidRequest))
	})

	It("treats undecodable bodies as invalid requests", func() {
		_, err := messenger.DecodeRevalueRequest([]byte("not json"))
		Expect(errors.Is(err, messenger.ErrInvalidRequest)).To(BeTrue())
	})

	It("refuses to publish without a connection", func() {
		Expect(messenger.Connected()).To(BeFalse())
		Expect(messenger.PublishRevalueRequest("auth0|6172", portfolioID)).To(MatchError(messenger.ErrNotConnected))
	})
})
