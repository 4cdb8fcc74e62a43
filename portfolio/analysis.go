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
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gridbazaar/gb-api/common"
	"github.com/gridbazaar/gb-api/observability/opentelemetry"
)

// Analysis is the full analytics report for one portfolio
type Analysis struct {
	PortfolioID     string       `json:"portfolioId,omitempty"`
	ComputedOn      time.Time    `json:"computedOn"`
	Valuation       Valuation    `json:"valuation"`
	Allocation      Allocation   `json:"allocation"`
	Targets         Allocation   `json:"targets"`
	Recommendations []*Deviation `json:"recommendations"`
	Untargeted      Allocation   `json:"untargeted"`
	Trades          []*Trade     `json:"trades"`
	BalanceScore    float64      `json:"balanceScore"`
	ItemCount       int          `json:"itemCount"`
	ActiveCount     int          `json:"activeCount"`
}

// Analyze runs valuation, allocation, deviation analysis, scoring and
// recommendation ordering over items
func Analyze(items []*Item, targets Allocation) *Analysis {
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	valuation := AggregateValuation(items)
	current := ClassifyAllocation(items)
	deviations := AnalyzeDeviations(current, targets)
	sorted := SortRecommendations(deviations)

	active := 0
	for _, item := range items {
		if item.IsActive() {
			active++
		}
	}

	return &Analysis{
		ComputedOn:      time.Now(),
		Valuation:       valuation,
		Allocation:      current,
		Targets:         targets,
		Recommendations: sorted,
		Untargeted:      UntargetedSectors(current, targets),
		Trades:          SuggestTrades(sorted, valuation.TotalCurrentValue),
		BalanceScore:    ScoreRebalance(deviations),
		ItemCount:       len(items),
		ActiveCount:     active,
	}
}

// Analyze runs the analytics against the portfolio's own target allocation
func (p *Portfolio) Analyze(ctx context.Context, items []*Item) *Analysis {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Analyze")
	defer span.End()

	analysis := Analyze(items, p.TargetAllocation)
	analysis.PortfolioID = p.ID.String()

	span.SetAttributes(
		attribute.String("PortfolioID", p.ID.String()),
		attribute.Int("ItemCount", analysis.ItemCount),
		attribute.Float64("BalanceScore", analysis.BalanceScore),
	)

	log.Debug().Object("Portfolio", p).Object("Analysis", analysis).Msg("analyzed portfolio")
	return analysis
}

// AnalysisKey identifies the inputs of an analysis. Any change to the
// targets or to an item produces a different key.
func AnalysisKey(p *Portfolio, items []*Item) string {
	h := blake3.New()
	buf := make([]byte, 8)

	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		_, _ = h.Write(buf)
	}
	writeString := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}

	_, _ = h.Write(p.ID[:])
	for _, sector := range p.TargetAllocation.Sectors() {
		writeString(sector)
		writeFloat(p.TargetAllocation[sector])
	}

	sortedItems := make([]*Item, len(items))
	copy(sortedItems, items)
	sort.Slice(sortedItems, func(i, j int) bool {
		return sortedItems[i].ID.String() < sortedItems[j].ID.String()
	})

	for _, item := range sortedItems {
		_, _ = h.Write(item.ID[:])
		writeString(string(item.Status))
		writeString(item.Sector())
		writeFloat(valueOf(item.AcquisitionPrice))
		writeFloat(valueOf(item.CurrentValue))
	}

	return "analysis:" + hex.EncodeToString(h.Sum(nil))
}

// CachedAnalysis returns the stored analysis for these inputs or computes and
// stores a new one
func (p *Portfolio) CachedAnalysis(ctx context.Context, items []*Item) (*Analysis, error) {
	key := AnalysisKey(p, items)
	subLog := log.With().Str("PortfolioID", p.ID.String()).Str("CacheKey", key).Logger()

	if raw, err := common.CacheGet(ctx, key); err == nil {
		analysis := &Analysis{}
		decodeErr := json.Unmarshal(raw, analysis)
		if decodeErr == nil {
			return analysis, nil
		}
		subLog.Warn().Err(decodeErr).Msg("could not decode cached analysis; recomputing")
	} else if !errors.Is(err, common.ErrCacheMiss) {
		subLog.Warn().Err(err).Msg("cache lookup failed")
	}

	analysis := p.Analyze(ctx, items)
	storeAnalysis(ctx, key, analysis)
	return analysis, nil
}

func storeAnalysis(ctx context.Context, key string, analysis *Analysis) {
	subLog := log.With().Str("PortfolioID", analysis.PortfolioID).Str("CacheKey", key).Logger()
	raw, err := json.Marshal(analysis)
	if err != nil {
		subLog.Error().Err(err).Msg("could not encode analysis")
		return
	}
	if err := common.CacheSet(ctx, key, raw); err != nil {
		subLog.Warn().Err(err).Msg("could not cache analysis")
	}
}

// Revalue recomputes a portfolio's analysis from the database, replaces the
// cached copy and records the new balance score in the activity feed
func Revalue(ctx context.Context, userID string, portfolioID uuid.UUID) (*Analysis, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Revalue")
	defer span.End()

	p, err := LoadPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	items, err := LoadItems(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	analysis := p.Analyze(ctx, items)
	storeAnalysis(ctx, AnalysisKey(p, items), analysis)

	p.AddActivity(analysis.ComputedOn, fmt.Sprintf("Revalued at %.2f with balance score %.0f",
		analysis.Valuation.TotalCurrentValue, analysis.BalanceScore), []string{"revalue"})
	if err := p.SaveActivities(ctx); err != nil {
		return analysis, err
	}

	return analysis, nil
}
