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

// UnclassifiedSector is the bucket for items without a sector
const UnclassifiedSector = "Other"

// DefaultTargets is used when a portfolio has no target allocation of its own
var DefaultTargets = Allocation{
	"Solar":   30,
	"Wind":    25,
	"Storage": 20,
	"Grid":    15,
	"Other":   10,
}

// ClassifyAllocation groups active items by sector and expresses each group's
// current value as a percentage of the active total. Every sector reads 0 when
// the total is 0.
func ClassifyAllocation(items []*Item) Allocation {
	buckets := make(map[string]float64)
	var total float64

	for _, item := range items {
		if !item.IsActive() {
			continue
		}
		v := valueOf(item.CurrentValue)
		buckets[item.Sector()] += v
		total += v
	}

	alloc := make(Allocation, len(buckets))
	for sector, v := range buckets {
		if total > 0 {
			alloc[sector] = v / total * 100
		} else {
			alloc[sector] = 0
		}
	}

	return alloc
}

// UntargetedSectors returns the sectors that hold value but have no entry in
// targets
func UntargetedSectors(current, targets Allocation) Allocation {
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	extra := make(Allocation)
	for sector, pct := range current {
		if _, ok := targets[sector]; ok {
			continue
		}
		if pct = finite(pct); pct > 0 {
			extra[sector] = pct
		}
	}
	return extra
}
