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

package portfolio

import (
	"github.com/rs/zerolog"
)

func (p *Portfolio) MarshalZerologObject(e *zerolog.Event) {
	e.Str("PortfolioID", p.ID.String()).
		Str("UserID", p.UserID).
		Str("Name", p.Name).
		Str("Kind", string(p.Kind)).
		Str("RiskTolerance", string(p.RiskTolerance)).
		Int("NumTargets", len(p.TargetAllocation))
}

func (item *Item) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ItemID", item.ID.String()).
		Str("PortfolioID", item.PortfolioID.String()).
		Str("Kind", string(item.Kind)).
		Str("Status", string(item.Status)).
		Str("Sector", item.Sector())
	if item.AcquisitionPrice != nil {
		e.Float64("AcquisitionPrice", *item.AcquisitionPrice)
	}
	if item.CurrentValue != nil {
		e.Float64("CurrentValue", *item.CurrentValue)
	}
}

func (v Valuation) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("TotalAcquisitionValue", v.TotalAcquisitionValue).
		Float64("TotalCurrentValue", v.TotalCurrentValue).
		Float64("TotalReturn", v.TotalReturn).
		Float64("ReturnPercentage", v.ReturnPercentage)
}

func (d *Deviation) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Sector", d.Sector).
		Float64("Current", d.Current).
		Float64("Target", d.Target).
		Float64("Difference", d.Difference).
		Str("Classification", string(d.Classification)).
		Str("Priority", string(d.Priority))
}

func (a *Analysis) MarshalZerologObject(e *zerolog.Event) {
	e.Object("Valuation", a.Valuation).
		Float64("BalanceScore", a.BalanceScore).
		Int("ItemCount", a.ItemCount).
		Int("ActiveCount", a.ActiveCount).
		Int("NumRecommendations", len(a.Recommendations)).
		Int("NumUntargeted", len(a.Untargeted))
}
