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

// Package pgxmockhelper builds pgxmock rows and expectations from CSV
// fixtures so database backed code can be tested without postgres
package pgxmockhelper

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
)

// CSVRows is an in-memory copy of a fixture file. Column values are converted
// according to a type map so they can be scanned into the destination fields
// directly; types prefixed with * are nullable and map empty cells to nil.
type CSVRows struct {
	rows   [][]any
	header []string
}

func convert(typeConv, val string) (any, error) {
	switch typeConv {
	case "uuid":
		return uuid.Parse(val)
	case "*uuid":
		if val == "" {
			return nil, nil
		}
		parsed, err := uuid.Parse(val)
		return &parsed, err
	case "float64":
		return strconv.ParseFloat(val, 64)
	case "*float64":
		if val == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(val, 64)
		return &parsed, err
	case "date":
		return time.Parse("2006-01-02", val)
	case "*date":
		if val == "" {
			return nil, nil
		}
		parsed, err := time.Parse("2006-01-02", val)
		return &parsed, err
	case "timestamp":
		return time.Parse(time.RFC3339, val)
	case "bytes":
		return []byte(val), nil
	default:
		return val, nil
	}
}

// NewCSVRows reads csvFn; the first line is the header
func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	fh, err := os.Open(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}
	defer fh.Close()

	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		subLog.Panic().Err(err).Msg("could not parse csv")
	}

	if len(records) < 1 {
		subLog.Panic().Msg("input file does not have a header")
	}

	rows := &CSVRows{
		header: records[0],
		rows:   make([][]any, 0, len(records)-1),
	}

	for _, record := range records[1:] {
		cols := make([]any, len(rows.header))
		for idx, val := range record {
			colName := rows.header[idx]
			converted, err := convert(typeMap[colName], val)
			if err != nil {
				subLog.Panic().Err(err).Str("Column", colName).Str("Val", val).Msg("could not convert value")
			}
			cols[idx] = converted
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

// Where keeps only the rows whose column equals val
func (csvRows *CSVRows) Where(column string, val any) *CSVRows {
	colIdx := -1
	for idx, name := range csvRows.header {
		if name == column {
			colIdx = idx
		}
	}
	if colIdx == -1 {
		log.Panic().Str("Column", column).Msg("no such column")
	}

	filtered := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		if row[colIdx] == val {
			filtered = append(filtered, row)
		}
	}
	csvRows.rows = filtered
	return csvRows
}

// Len is the number of rows currently selected
func (csvRows *CSVRows) Len() int {
	return len(csvRows.rows)
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}

// ExpectUserTrx expects a transaction to begin and switch to a user role
func ExpectUserTrx(db pgxmock.PgxConnIface) {
	db.ExpectBegin()
	db.ExpectExec("SET ROLE").WillReturnResult(pgconn.CommandTag("SET ROLE"))
}

// ItemTypes converts the portfolio_items fixture columns
var ItemTypes = map[string]string{
	"id":                "uuid",
	"portfolio_id":      "uuid",
	"listing_id":        "*uuid",
	"acquisition_price": "*float64",
	"current_value":     "*float64",
	"acquisition_date":  "*date",
	"metadata":          "bytes",
	"created":           "timestamp",
	"lastchanged":       "timestamp",
}

// PortfolioTypes converts the portfolios fixture columns
var PortfolioTypes = map[string]string{
	"id":                "uuid",
	"target_allocation": "bytes",
	"created":           "timestamp",
	"lastchanged":       "timestamp",
}

// ListingTypes converts the listings fixture columns
var ListingTypes = map[string]string{
	"id":          "uuid",
	"capacity_mw": "float64",
	"price":       "float64",
	"created":     "timestamp",
}

// MockItemsQuery expects a portfolio item lookup for portfolioID
func MockItemsQuery(db pgxmock.PgxConnIface, fn string, portfolioID uuid.UUID) {
	ExpectUserTrx(db)
	db.ExpectQuery("SELECT id, portfolio_id").WillReturnRows(
		NewCSVRows(fn, ItemTypes).Where("portfolio_id", portfolioID).Rows())
	db.ExpectCommit()
}

// MockPortfolioQuery expects a lookup of the given portfolios
func MockPortfolioQuery(db pgxmock.PgxConnIface, fn string, portfolioIDs ...uuid.UUID) {
	ExpectUserTrx(db)
	rows := NewCSVRows(fn, PortfolioTypes)
	if len(portfolioIDs) == 1 {
		rows = rows.Where("id", portfolioIDs[0])
	}
	db.ExpectQuery("SELECT id, name, description").WillReturnRows(rows.Rows())
	db.ExpectCommit()
}
