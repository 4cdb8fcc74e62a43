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

// Package scoring produces risk, property, environmental and sentiment scores
// for marketplace listings and portfolios.
package scoring

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gridbazaar/gb-api/observability/opentelemetry"
)

var (
	ErrUnknownKind  = errors.New("unknown score kind")
	ErrEmptySubject = errors.New("subject id cannot be empty")
)

type Kind string

const (
	Risk          Kind = "risk"
	Property      Kind = "property"
	Environmental Kind = "environmental"
	Sentiment     Kind = "sentiment"
)

// MockModel labels every result produced by MockStrategy
const MockModel = "mock-v1"

// Subject identifies the thing being scored
type Subject struct {
	Kind Kind
	ID   string
}

type Result struct {
	Kind       Kind               `json:"kind"`
	SubjectID  string             `json:"subjectId"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Factors    map[string]float64 `json:"factors"`
	Model      string             `json:"model"`
}

// Strategy scores a subject. Implementations must be safe for concurrent use.
type Strategy interface {
	Score(ctx context.Context, subject Subject) (*Result, error)
}

// ParseKind validates a kind read from a request
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(s))
	if _, ok := profiles[k]; !ok {
		return "", ErrUnknownKind
	}
	return k, nil
}

type profile struct {
	alpha   float64
	beta    float64
	factors []string
}

// beta parameters skew each kind toward its typical range
var profiles = map[Kind]profile{
	Risk:          {alpha: 2, beta: 3, factors: []string{"interconnection", "permitting", "market", "counterparty"}},
	Property:      {alpha: 4, beta: 2, factors: []string{"terrain", "access", "solar_resource", "flood_exposure"}},
	Environmental: {alpha: 3, beta: 2, factors: []string{"habitat", "water", "emissions_avoided"}},
	Sentiment:     {alpha: 2.5, beta: 2.5, factors: []string{"news", "social", "policy"}},
}

// MockStrategy draws scores from a Beta distribution seeded by the subject so
// that a subject always receives the same score.
type MockStrategy struct{}

func NewMockStrategy() *MockStrategy {
	return &MockStrategy{}
}

func seed(subject Subject) uint64 {
	sum := blake3.Sum256([]byte(string(subject.Kind) + ":" + subject.ID))
	return binary.LittleEndian.Uint64(sum[:8])
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func (m *MockStrategy) Score(ctx context.Context, subject Subject) (*Result, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "scoring.Mock")
	defer span.End()
	span.SetAttributes(attribute.String("Kind", string(subject.Kind)), attribute.String("SubjectID", subject.ID))

	p, ok := profiles[subject.Kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	if subject.ID == "" {
		return nil, ErrEmptySubject
	}

	src := rand.NewSource(seed(subject))
	dist := distuv.Beta{Alpha: p.alpha, Beta: p.beta, Src: src}
	confidence := distuv.Uniform{Min: 0.55, Max: 0.95, Src: src}

	result := &Result{
		Kind:       subject.Kind,
		SubjectID:  subject.ID,
		Score:      round(dist.Rand() * 100),
		Confidence: round(confidence.Rand()),
		Factors:    make(map[string]float64, len(p.factors)),
		Model:      MockModel,
	}
	for _, name := range p.factors {
		result.Factors[name] = round(dist.Rand() * 100)
	}

	log.Debug().Str("Kind", string(subject.Kind)).Str("SubjectID", subject.ID).Float64("Score", result.Score).Msg("scored subject")
	return result, nil
}
