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

// Valuation summarizes the acquisition cost and current worth of a set of items
type Valuation struct {
	TotalAcquisitionValue float64 `json:"totalAcquisitionValue"`
	TotalCurrentValue     float64 `json:"totalCurrentValue"`
	TotalReturn           float64 `json:"totalReturn"`
	ReturnPercentage      float64 `json:"returnPercentage"`
}

// AggregateValuation totals the active items. Missing or non-finite prices
// count as 0 and the return percentage is 0 whenever nothing was paid.
func AggregateValuation(items []*Item) Valuation {
	val := Valuation{}
	for _, item := range items {
		if !item.IsActive() {
			continue
		}
		val.TotalAcquisitionValue += valueOf(item.AcquisitionPrice)
		val.TotalCurrentValue += valueOf(item.CurrentValue)
	}

	val.TotalReturn = val.TotalCurrentValue - val.TotalAcquisitionValue
	if val.TotalAcquisitionValue > 0 {
		val.ReturnPercentage = val.TotalReturn / val.TotalAcquisitionValue * 100
	}

	return val
}
