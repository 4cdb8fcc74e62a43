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

// Package listing serves the marketplace catalog of power sites, hosting
// capacity and equipment
package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/database"
)

var (
	ErrNotFound     = errors.New("listing not found")
	ErrInvalidKind  = errors.New("invalid listing kind")
	ErrInvalidState = errors.New("invalid listing status")
	ErrInvalidSort  = errors.New("invalid sort order")
	ErrInvalidRange = errors.New("invalid numeric filter")
)

type Kind string

const (
	PowerSite       Kind = "power_site"
	HostingCapacity Kind = "hosting_capacity"
	Equipment       Kind = "equipment"
)

type Status string

const (
	Active  Status = "active"
	Pending Status = "pending"
	Sold    Status = "sold"
)

// Listing is an asset offered on the marketplace
type Listing struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Kind       Kind      `json:"kind"`
	Sector     string    `json:"sector"`
	State      string    `json:"state"`
	CapacityMW float64   `json:"capacityMW"`
	Price      float64   `json:"price"`
	Status     Status    `json:"status"`
	Created    time.Time `json:"created"`
}

func (l *Listing) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ListingID", l.ID.String()).Str("Kind", string(l.Kind)).Str("State", l.State).Float64("Price", l.Price)
}

// Filter narrows a catalog search; zero values are ignored
type Filter struct {
	Kind        Kind
	Sector      string
	State       string
	Status      Status
	MinPrice    *float64
	MaxPrice    *float64
	MinCapacity *float64
	MaxCapacity *float64
	Title       string
	Sort        string
}

var columns = []string{"id", "title", "kind", "sector", "state", "capacity_mw", "price", "status", "created"}

var sortOrders = map[string]string{
	"":          "created DESC",
	"newest":    "created DESC",
	"oldest":    "created ASC",
	"price":     "price ASC",
	"-price":    "price DESC",
	"capacity":  "capacity_mw ASC",
	"-capacity": "capacity_mw DESC",
}

func parseBound(get func(string) string, key string) (*float64, error) {
	raw := strings.TrimSpace(get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRange, key)
	}
	return &v, nil
}

// ParseFilter reads a filter from query parameters. Only active listings are
// returned unless a status is requested.
func ParseFilter(get func(string) string) (*Filter, error) {
	f := &Filter{
		Kind:   Kind(get("kind")),
		Sector: get("sector"),
		State:  strings.ToUpper(get("state")),
		Status: Status(get("status")),
		Title:  strings.TrimSpace(get("q")),
		Sort:   get("sort"),
	}

	switch f.Kind {
	case "", PowerSite, HostingCapacity, Equipment:
	default:
		return nil, ErrInvalidKind
	}

	switch f.Status {
	case "":
		f.Status = Active
	case Active, Pending, Sold:
	default:
		return nil, ErrInvalidState
	}

	if _, ok := sortOrders[f.Sort]; !ok {
		return nil, ErrInvalidSort
	}

	var err error
	if f.MinPrice, err = parseBound(get, "min_price"); err != nil {
		return nil, err
	}
	if f.MaxPrice, err = parseBound(get, "max_price"); err != nil {
		return nil, err
	}
	if f.MinCapacity, err = parseBound(get, "min_capacity"); err != nil {
		return nil, err
	}
	if f.MaxCapacity, err = parseBound(get, "max_capacity"); err != nil {
		return nil, err
	}

	return f, nil
}

func where(stmt *pgsql.SelectStatement, column, op string, val interface{}) {
	stmt.Where(fmt.Sprintf("%s %s ?", pgx.Identifier{column}.Sanitize(), op), val)
}

// BuildQuery renders the catalog query for f with the given page
func BuildQuery(f *Filter, limit, offset int) (string, []interface{}, error) {
	order, ok := sortOrders[f.Sort]
	if !ok {
		return "", nil, ErrInvalidSort
	}

	stmt := &pgsql.SelectStatement{}
	for _, col := range columns {
		stmt.Select(pgx.Identifier{col}.Sanitize())
	}
	stmt.From(pgx.Identifier{"listings"}.Sanitize())

	if f.Kind != "" {
		where(stmt, "kind", "=", string(f.Kind))
	}
	if f.Sector != "" {
		where(stmt, "sector", "=", f.Sector)
	}
	if f.State != "" {
		where(stmt, "state", "=", f.State)
	}
	if f.Status != "" {
		where(stmt, "status", "=", string(f.Status))
	}
	if f.MinPrice != nil {
		where(stmt, "price", ">=", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where(stmt, "price", "<=", *f.MaxPrice)
	}
	if f.MinCapacity != nil {
		where(stmt, "capacity_mw", ">=", *f.MinCapacity)
	}
	if f.MaxCapacity != nil {
		where(stmt, "capacity_mw", "<=", *f.MaxCapacity)
	}
	if f.Title != "" {
		where(stmt, "title", "ilike", "%"+f.Title+"%")
	}

	stmt.Order(order)

	sql, args := pgsql.Build(stmt)
	sql = fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, limit, offset)
	return sql, args, nil
}

func scanListings(rows pgx.Rows) ([]*Listing, error) {
	listings := make([]*Listing, 0, 25)
	for rows.Next() {
		var kind, status string
		l := &Listing{}
		if err := rows.Scan(&l.ID, &l.Title, &kind, &l.Sector, &l.State, &l.CapacityMW, &l.Price, &status, &l.Created); err != nil {
			rows.Close()
			return nil, err
		}
		l.Kind = Kind(kind)
		l.Status = Status(status)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func query(ctx context.Context, userID, sql string, args ...interface{}) ([]*Listing, error) {
	subLog := log.With().Str("UserID", userID).Str("Query", sql).Logger()

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return nil, err
	}

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		subLog.Warn().Stack().Err(err).Msg("database query failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	listings, err := scanListings(rows)
	if err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not scan listings")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	return listings, nil
}

// Search returns one page of listings matching f
func Search(ctx context.Context, userID string, f *Filter, limit, offset int) ([]*Listing, error) {
	sql, args, err := BuildQuery(f, limit, offset)
	if err != nil {
		return nil, err
	}
	return query(ctx, userID, sql, args...)
}

// Get returns a single listing
func Get(ctx context.Context, userID string, id uuid.UUID) (*Listing, error) {
	sql := `SELECT ` + strings.Join(columns, ", ") + ` FROM listings WHERE id=$1`
	listings, err := query(ctx, userID, sql, id)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, ErrNotFound
	}
	return listings[0], nil
}
