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

package scoring_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gridbazaar/gb-api/scoring"
)

var _ = Describe("Scoring", func() {
	var strategy scoring.Strategy

	BeforeEach(func() {
		strategy = scoring.NewMockStrategy()
	})

	DescribeTable("scores every kind within bounds",
		func(kind scoring.Kind) {
			result, err := strategy.Score(context.Background(), scoring.Subject{Kind: kind, ID: "5e2f4c1a-9b8d-4e7f-a6c5-d4e3f2a1b001"})
			Expect(err).To(BeNil())
			Expect(result.Kind).To(Equal(kind))
			Expect(result.Model).To(Equal(scoring.MockModel))
			Expect(result.Score).To(BeNumerically(">=", 0))
			Expect(result.Score).To(BeNumerically("<=", 100))
			Expect(result.Confidence).To(BeNumerically(">=", 0.55))
			Expect(result.Confidence).To(BeNumerically("<=", 0.95))
			Expect(result.Factors).NotTo(BeEmpty())
			for _, v := range result.Factors {
				Expect(v).To(BeNumerically(">=", 0))
				Expect(v).To(BeNumerically("<=", 100))
			}
		},
		Entry("risk", scoring.Risk),
		Entry("property", scoring.Property),
		Entry("environmental", scoring.Environmental),
		Entry("sentiment", scoring.Sentiment),
	)

	It("returns the same score for the same subject", func() {
		subject := scoring.Subject{Kind: scoring.Risk, ID: "listing-42"}
		first, err := strategy.Score(context.Background(), subject)
		Expect(err).To(BeNil())
		second, err := strategy.Score(context.Background(), subject)
		Expect(err).To(BeNil())
		Expect(second).To(Equal(first))
	})

	It("varies between subjects", func() {
		scores := make(map[float64]bool)
		for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
			result, err := strategy.Score(context.Background(), scoring.Subject{Kind: scoring.Property, ID: id})
			Expect(err).To(BeNil())
			scores[result.Score] = true
		}
		Expect(len(scores)).To(BeNumerically(">", 1))
	})

	It("rejects unknown kinds and empty subjects", func() {
		_, err := strategy.Score(context.Background(), scoring.Subject{Kind: "astrology", ID: "x"})
		Expect(err).To(MatchError(scoring.ErrUnknownKind))
		_, err = strategy.Score(context.Background(), scoring.Subject{Kind: scoring.Risk})
		Expect(err).To(MatchError(scoring.ErrEmptySubject))
	})

	It("parses kinds case-insensitively", func() {
		k, err := scoring.ParseKind("Environmental")
		Expect(err).To(BeNil())
		Expect(k).To(Equal(scoring.Environmental))
		_, err = scoring.ParseKind("weather")
		Expect(err).To(MatchError(scoring.ErrUnknownKind))
	})
})
