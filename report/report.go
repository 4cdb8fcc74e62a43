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

// Package report renders a portfolio analysis as markdown for the terminal
package report

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/gridbazaar/gb-api/portfolio"
)

// Currency is the ISO code used for every amount in the report
const Currency = money.USD

// FormatMoney renders amount in Currency with grouping and minor units
func FormatMoney(amount float64) string {
	cur := money.GetCurrency(Currency)
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(factor).Round(0)
	return money.New(minor.IntPart(), Currency).Display()
}

func formatPercent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "%"
}

// Markdown builds the analysis report
func Markdown(p *portfolio.Portfolio, analysis *portfolio.Analysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", p.Description)
	}
	fmt.Fprintf(&sb, "*%s portfolio, %s risk tolerance, %d of %d items active*\n\n",
		p.Kind, p.RiskTolerance, analysis.ActiveCount, analysis.ItemCount)

	sb.WriteString("## Valuation\n\n")
	sb.WriteString("| Acquisition | Current | Return | Return % |\n")
	sb.WriteString("|---:|---:|---:|---:|\n")
	fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n\n",
		FormatMoney(analysis.Valuation.TotalAcquisitionValue),
		FormatMoney(analysis.Valuation.TotalCurrentValue),
		FormatMoney(analysis.Valuation.TotalReturn),
		formatPercent(analysis.Valuation.ReturnPercentage))

	fmt.Fprintf(&sb, "## Balance score: %.0f / 100\n\n", analysis.BalanceScore)

	sb.WriteString("| Sector | Current | Target | Difference | Priority | Action |\n")
	sb.WriteString("|---|---:|---:|---:|---|---|\n")
	for _, d := range analysis.Recommendations {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
			d.Sector, formatPercent(d.Current), formatPercent(d.Target), formatPercent(d.Difference), d.Priority, d.Action)
	}
	sb.WriteString("\n")

	if len(analysis.Untargeted) > 0 {
		sb.WriteString("### Held without a target\n\n")
		for _, sector := range analysis.Untargeted.Sectors() {
			fmt.Fprintf(&sb, "- %s: %s\n", sector, formatPercent(analysis.Untargeted[sector]))
		}
		sb.WriteString("\n")
	}

	if len(analysis.Trades) > 0 {
		sb.WriteString("## Suggested trades\n\n")
		sb.WriteString("| Sector | Amount |\n")
		sb.WriteString("|---|---:|\n")
		for _, t := range analysis.Trades {
			fmt.Fprintf(&sb, "| %s | %s |\n", t.Sector, FormatMoney(t.Amount))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// Render formats the report for a terminal of the given width
func Render(p *portfolio.Portfolio, analysis *portfolio.Analysis, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(Markdown(p, analysis))
}
