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

package report_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gridbazaar/gb-api/portfolio"
	"github.com/gridbazaar/gb-api/report"
)

func ptr(v float64) *float64 {
	return &v
}

var _ = Describe("Report", func() {
	var (
		p        *portfolio.Portfolio
		analysis *portfolio.Analysis
	)

	BeforeEach(func() {
		p = portfolio.New("auth0|6172", "Southwest Renewables")
		p.TargetAllocation = portfolio.Allocation{"Solar": 50, "Wind": 50}

		solar := portfolio.NewItem(p.ID, portfolio.InvestmentItem)
		solar.AcquisitionPrice = ptr(100000)
		solar.CurrentValue = ptr(150000)
		solar.Metadata.Sector = "Solar"

		hydro := portfolio.NewItem(p.ID, portfolio.InvestmentItem)
		hydro.AcquisitionPrice = ptr(60000)
		hydro.CurrentValue = ptr(50000)
		hydro.Metadata.Sector = "Hydro"

		analysis = portfolio.Analyze([]*portfolio.Item{solar, hydro}, p.TargetAllocation)
	})

	DescribeTable("formats money",
		func(amount float64, expected string) {
			Expect(report.FormatMoney(amount)).To(Equal(expected))
		},
		Entry("grouped thousands", 330000.0, "$330,000.00"),
		Entry("cents", 1234.5, "$1,234.50"),
		Entry("negative", -20000.0, "-$20,000.00"),
		Entry("zero", 0.0, "$0.00"),
	)

	It("includes valuation, recommendations and trades", func() {
		md := report.Markdown(p, analysis)
		Expect(md).To(HavePrefix("# Southwest Renewables"))
		Expect(md).To(ContainSubstring("| $160,000.00 | $200,000.00 | $40,000.00 | 25.0% |"))
		Expect(md).To(ContainSubstring("| Solar | 75.0% | 50.0% | 25.0% | high | Reduce by 25.0% |"))
		Expect(md).To(ContainSubstring("| Wind | 0.0% | 50.0% | -50.0% | high | Increase by 50.0% |"))
		Expect(md).To(ContainSubstring("- Hydro: 25.0%"))
		Expect(md).To(ContainSubstring("| Wind | $100,000.00 |"))
		Expect(md).To(ContainSubstring("| Solar | -$50,000.00 |"))
	})

	It("renders for the terminal", func() {
		out, err := report.Render(p, analysis, 100)
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("Southwest"))
	})
})
