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
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

type Classification string

const (
	Overweight  Classification = "overweight"
	Underweight Classification = "underweight"
	Balanced    Classification = "balanced"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Deviation thresholds in percentage points
const (
	BalancedBand    = 2.0
	MediumThreshold = 5.0
	HighThreshold   = 10.0
)

// ScorePenalty is the number of balance score points lost per percentage
// point of absolute deviation
const ScorePenalty = 2.0

const NoActionNeeded = "No action needed"

// Deviation is the gap between a sector's current and target allocation
type Deviation struct {
	Sector         string         `json:"sector"`
	Current        float64        `json:"current"`
	Target         float64        `json:"target"`
	Difference     float64        `json:"difference"`
	Classification Classification `json:"classification"`
	Priority       Priority       `json:"priority"`
	Action         string         `json:"action"`
}

// Trade is the currency amount that would move a sector onto its target;
// positive amounts buy and negative amounts sell
type Trade struct {
	Sector string  `json:"sector"`
	Amount float64 `json:"amount"`
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func priorityFor(magnitude float64) Priority {
	switch {
	case magnitude > HighThreshold:
		return PriorityHigh
	case magnitude > MediumThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// percentString renders v with exactly one decimal place
func percentString(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

func classify(sector string, current, target float64) *Deviation {
	d := &Deviation{
		Sector:     sector,
		Current:    current,
		Target:     target,
		Difference: current - target,
	}

	magnitude := math.Abs(d.Difference)
	switch {
	case magnitude <= BalancedBand:
		d.Classification = Balanced
		d.Priority = PriorityLow
		d.Action = NoActionNeeded
	case d.Difference > 0:
		d.Classification = Overweight
		d.Priority = priorityFor(magnitude)
		d.Action = fmt.Sprintf("Reduce by %s%%", percentString(magnitude))
	default:
		d.Classification = Underweight
		d.Priority = priorityFor(magnitude)
		d.Action = fmt.Sprintf("Increase by %s%%", percentString(magnitude))
	}

	return d
}

// AnalyzeDeviations compares current against targets, one row per target
// sector in ascending sector order. DefaultTargets stands in for an empty
// targets map and sectors absent from current count as 0.
func AnalyzeDeviations(current, targets Allocation) []*Deviation {
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	deviations := make([]*Deviation, 0, len(targets))
	for _, sector := range targets.Sectors() {
		deviations = append(deviations, classify(sector, finite(current[sector]), finite(targets[sector])))
	}

	return deviations
}

// ScoreRebalance reduces deviations to a 0-100 balance score that loses
// ScorePenalty points per point of absolute deviation
func ScoreRebalance(deviations []*Deviation) float64 {
	diffs := make([]float64, 0, len(deviations))
	for _, d := range deviations {
		if d == nil {
			continue
		}
		diffs = append(diffs, finite(d.Difference))
	}

	return math.Max(0, 100-ScorePenalty*floats.Norm(diffs, 1))
}

// SortRecommendations returns the deviations ordered by priority and then by
// magnitude, both descending. Ties keep their input order and the input slice
// is left untouched.
func SortRecommendations(deviations []*Deviation) []*Deviation {
	sorted := make([]*Deviation, 0, len(deviations))
	for _, d := range deviations {
		if d != nil {
			sorted = append(sorted, d)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Priority.rank(), sorted[j].Priority.rank()
		if ri != rj {
			return ri > rj
		}
		return math.Abs(finite(sorted[i].Difference)) > math.Abs(finite(sorted[j].Difference))
	})

	return sorted
}

// SuggestTrades converts every deviation that is not balanced into the
// currency amount needed to bring its sector back to target
func SuggestTrades(deviations []*Deviation, totalCurrentValue float64) []*Trade {
	trades := make([]*Trade, 0, len(deviations))
	totalCurrentValue = finite(totalCurrentValue)
	if totalCurrentValue <= 0 {
		return trades
	}

	for _, d := range deviations {
		if d == nil || d.Classification == Balanced {
			continue
		}
		amount, _ := decimal.NewFromFloat(-finite(d.Difference) / 100 * totalCurrentValue).Round(2).Float64()
		trades = append(trades, &Trade{
			Sector: d.Sector,
			Amount: amount,
		})
	}

	return trades
}
