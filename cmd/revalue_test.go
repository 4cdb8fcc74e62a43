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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gridbazaar/gb-api/messenger"
	"github.com/gridbazaar/gb-api/portfolio"
)

type recordedMsg struct {
	acks, naks, terms int
}

func (m *recordedMsg) Ack(...nats.AckOpt) error  { m.acks++; return nil }
func (m *recordedMsg) Nak(...nats.AckOpt) error  { m.naks++; return nil }
func (m *recordedMsg) Term(...nats.AckOpt) error { m.terms++; return nil }

type fetchResult struct {
	msg settler
	req *messenger.RevalueRequest
	err error
}

// queue replays results in order and then reports an empty queue
func queue(results ...fetchResult) (func() (settler, *messenger.RevalueRequest, error), *int) {
	calls := 0
	return func() (settler, *messenger.RevalueRequest, error) {
		calls++
		if calls > len(results) {
			return nil, nil, nil
		}
		r := results[calls-1]
		return r.msg, r.req, r.err
	}, &calls
}

var _ = Describe("Revalue worker", func() {
	var (
		ctx         context.Context
		portfolioID uuid.UUID
		req         *messenger.RevalueRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		portfolioID = uuid.MustParse("7d3b0c4e-5a1f-4b9e-9c51-2f0e8a6b1c01")
		req = &messenger.RevalueRequest{UserID: "auth0|6172", PortfolioID: portfolioID, RequestTime: time.Now()}
	})

	worker := func(fetch func() (settler, *messenger.RevalueRequest, error), err error) *revalueWorker {
		return &revalueWorker{
			fetch: fetch,
			revalue: func(context.Context, string, uuid.UUID) (*portfolio.Analysis, error) {
				if err != nil {
					return nil, err
				}
				return &portfolio.Analysis{BalanceScore: 80}, nil
			},
			maxFailures: 3,
		}
	}

	It("acknowledges a successful revalue", func() {
		msg := &recordedMsg{}
		fetch, calls := queue(fetchResult{msg: msg, req: req})

		processed, err := worker(fetch, nil).run(ctx)
		Expect(err).To(BeNil())
		Expect(processed).To(Equal(1))
		Expect(msg.acks).To(Equal(1))
		Expect(*calls).To(Equal(2))
	})

	It("stops once the requested number succeed", func() {
		fetch, calls := queue(fetchResult{msg: &recordedMsg{}, req: req}, fetchResult{msg: &recordedMsg{}, req: req})
		w := worker(fetch, nil)
		w.max = 1

		processed, err := w.run(ctx)
		Expect(err).To(BeNil())
		Expect(processed).To(Equal(1))
		Expect(*calls).To(Equal(1))
	})

	It("terminates a request for a deleted portfolio instead of redelivering it", func() {
		msg := &recordedMsg{}
		fetch, _ := queue(fetchResult{msg: msg, req: req})

		processed, err := worker(fetch, fmt.Errorf("load: %w", portfolio.ErrPortfolioNotFound)).run(ctx)
		Expect(err).To(BeNil())
		Expect(processed).To(Equal(0))
		Expect(msg.terms).To(Equal(1))
		Expect(msg.naks).To(Equal(0))
	})

	It("requests redelivery after a transient failure", func() {
		msg := &recordedMsg{}
		fetch, _ := queue(fetchResult{msg: msg, req: req})

		_, err := worker(fetch, errors.New("connection reset")).run(ctx)
		Expect(err).To(BeNil())
		Expect(msg.naks).To(Equal(1))
		Expect(msg.terms).To(Equal(0))
	})

	It("gives up when fetching keeps failing", func() {
		calls := 0
		fetch := func() (settler, *messenger.RevalueRequest, error) {
			calls++
			return nil, nil, errors.New("consumer not found")
		}

		_, err := worker(fetch, nil).run(ctx)
		Expect(err).To(MatchError(ErrFetchFailed))
		Expect(calls).To(Equal(3))
	})

	It("skips malformed requests without counting them as fetch failures", func() {
		invalid := fetchResult{err: messenger.ErrInvalidRequest}
		fetch, calls := queue(invalid, invalid, invalid, invalid)

		processed, err := worker(fetch, nil).run(ctx)
		Expect(err).To(BeNil())
		Expect(processed).To(Equal(0))
		Expect(*calls).To(Equal(5))
	})

	It("stops when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		fetch, calls := queue(fetchResult{msg: &recordedMsg{}, req: req})
		_, err := worker(fetch, nil).run(cancelled)
		Expect(err).To(MatchError(context.Canceled))
		Expect(*calls).To(Equal(0))
	})
})
