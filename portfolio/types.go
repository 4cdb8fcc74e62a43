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
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyName            = errors.New("portfolio name cannot be empty")
	ErrInvalidPortfolioType = errors.New("invalid portfolio type")
	ErrInvalidRiskTolerance = errors.New("invalid risk tolerance")
	ErrNegativeTarget       = errors.New("target allocation percentages must be finite and non-negative")
	ErrInvalidItemType      = errors.New("invalid item type")
	ErrInvalidStatus        = errors.New("invalid item status")
	ErrInvalidRiskLevel     = errors.New("invalid risk level")
	ErrNegativeValue        = errors.New("acquisition price and current value must be finite and non-negative")
	ErrPortfolioMismatch    = errors.New("item does not belong to portfolio")
	ErrPortfolioNotFound    = errors.New("could not find portfolio ID in database")
	ErrItemNotFound         = errors.New("could not find portfolio item in database")
	ErrEmptyUserID          = errors.New("unauthenticated: user id empty")
)

type PortfolioType string

const (
	InvestmentPortfolio  PortfolioType = "investment"
	DevelopmentPortfolio PortfolioType = "development"
	TradingPortfolio     PortfolioType = "trading"
	ResearchPortfolio    PortfolioType = "research"
)

type RiskTolerance string

const (
	Conservative RiskTolerance = "conservative"
	Moderate     RiskTolerance = "moderate"
	Aggressive   RiskTolerance = "aggressive"
	Speculative  RiskTolerance = "speculative"
)

type ItemType string

const (
	ListingItem     ItemType = "listing"
	InvestmentItem  ItemType = "investment"
	OpportunityItem ItemType = "opportunity"
	ResearchItem    ItemType = "research"
)

type ItemStatus string

const (
	StatusActive        ItemStatus = "active"
	StatusSold          ItemStatus = "sold"
	StatusUnderContract ItemStatus = "under_contract"
	StatusMonitoring    ItemStatus = "monitoring"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Allocation maps a sector label to a percentage of portfolio value
type Allocation map[string]float64

// Sectors returns the allocation's keys in ascending order
func (a Allocation) Sectors() []string {
	sectors := make([]string, 0, len(a))
	for k := range a {
		sectors = append(sectors, k)
	}
	sort.Strings(sectors)
	return sectors
}

// Total sums every finite percentage in the allocation
func (a Allocation) Total() float64 {
	var total float64
	for _, v := range a {
		total += finite(v)
	}
	return total
}

// Portfolio is a named collection of items belonging to one user
type Portfolio struct {
	ID               uuid.UUID     `json:"id"`
	UserID           string        `json:"-"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	Kind             PortfolioType `json:"portfolioType"`
	RiskTolerance    RiskTolerance `json:"riskTolerance"`
	TargetAllocation Allocation    `json:"targetAllocation"`
	Created          time.Time     `json:"created"`
	LastChanged      time.Time     `json:"lastChanged"`

	activities []*Activity
}

// ItemMetadata holds the descriptive attributes of a holding
type ItemMetadata struct {
	Sector         string    `json:"sector,omitempty"`
	RiskLevel      RiskLevel `json:"riskLevel,omitempty"`
	Location       string    `json:"location,omitempty"`
	ExpectedReturn *float64  `json:"expectedReturn,omitempty"`
	TimeHorizon    string    `json:"timeHorizon,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// Item is one holding tracked within a portfolio
type Item struct {
	ID               uuid.UUID    `json:"id"`
	PortfolioID      uuid.UUID    `json:"portfolioId"`
	ListingID        *uuid.UUID   `json:"listingId,omitempty"`
	Kind             ItemType     `json:"itemType"`
	Status           ItemStatus   `json:"status"`
	AcquisitionPrice *float64     `json:"acquisitionPrice"`
	CurrentValue     *float64     `json:"currentValue"`
	AcquisitionDate  *time.Time   `json:"acquisitionDate"`
	Metadata         ItemMetadata `json:"metadata"`
	Created          time.Time    `json:"created"`
	LastChanged      time.Time    `json:"lastChanged"`
}

// New creates an empty portfolio for userID
func New(userID, name string) *Portfolio {
	now := time.Now()
	return &Portfolio{
		ID:               uuid.New(),
		UserID:           userID,
		Name:             name,
		Kind:             InvestmentPortfolio,
		RiskTolerance:    Moderate,
		TargetAllocation: Allocation{},
		Created:          now,
		LastChanged:      now,
	}
}

// NewItem creates an active item belonging to portfolioID
func NewItem(portfolioID uuid.UUID, kind ItemType) *Item {
	now := time.Now()
	return &Item{
		ID:          uuid.New(),
		PortfolioID: portfolioID,
		Kind:        kind,
		Status:      StatusActive,
		Created:     now,
		LastChanged: now,
	}
}

// IsActive reports whether the item counts toward valuation and allocation
func (item *Item) IsActive() bool {
	return item != nil && item.Status == StatusActive
}

// Sector returns the item's sector or UnclassifiedSector when none is set
func (item *Item) Sector() string {
	sector := strings.TrimSpace(item.Metadata.Sector)
	if sector == "" {
		return UnclassifiedSector
	}
	return sector
}

// Validate checks enum membership and numeric bounds
func (p *Portfolio) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}

	switch p.Kind {
	case InvestmentPortfolio, DevelopmentPortfolio, TradingPortfolio, ResearchPortfolio:
	default:
		return ErrInvalidPortfolioType
	}

	switch p.RiskTolerance {
	case Conservative, Moderate, Aggressive, Speculative:
	default:
		return ErrInvalidRiskTolerance
	}

	for _, v := range p.TargetAllocation {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ErrNegativeTarget
		}
	}

	return nil
}

// Validate checks enum membership and that valuations are non-negative
func (item *Item) Validate() error {
	switch item.Kind {
	case ListingItem, InvestmentItem, OpportunityItem, ResearchItem:
	default:
		return ErrInvalidItemType
	}

	switch item.Status {
	case StatusActive, StatusSold, StatusUnderContract, StatusMonitoring:
	default:
		return ErrInvalidStatus
	}

	switch item.Metadata.RiskLevel {
	case "", RiskLow, RiskModerate, RiskHigh:
	default:
		return ErrInvalidRiskLevel
	}

	for _, v := range []*float64{item.AcquisitionPrice, item.CurrentValue} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return ErrNegativeValue
		}
	}

	return nil
}

// finite maps NaN and infinities to 0
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func valueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return finite(*v)
}
