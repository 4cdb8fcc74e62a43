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
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/database"
)

const itemColumns = `id, portfolio_id, listing_id, item_type, status, acquisition_price, current_value, acquisition_date, metadata, created, lastchanged`

func scanItem(rows pgx.Rows) (*Item, error) {
	var kind, status string
	var metadata []byte

	item := &Item{}
	err := rows.Scan(&item.ID, &item.PortfolioID, &item.ListingID, &kind, &status, &item.AcquisitionPrice,
		&item.CurrentValue, &item.AcquisitionDate, &metadata, &item.Created, &item.LastChanged)
	if err != nil {
		return nil, err
	}

	item.Kind = ItemType(kind)
	item.Status = ItemStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, err
		}
	}

	return item, nil
}

func queryItems(ctx context.Context, userID string, sql string, args ...interface{}) ([]*Item, error) {
	subLog := log.With().Str("UserID", userID).Logger()
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to create database transaction for user")
		return nil, err
	}

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		subLog.Warn().Stack().Err(err).Str("Query", sql).Msg("could not load portfolio items")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	items := make([]*Item, 0, 10)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			subLog.Warn().Stack().Err(err).Msg("could not scan portfolio item")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		subLog.Warn().Stack().Err(err).Msg("reading portfolio item rows failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction to database")
	}

	return items, nil
}

// LoadItems returns every item in a portfolio, oldest first
func LoadItems(ctx context.Context, userID string, portfolioID uuid.UUID) ([]*Item, error) {
	return queryItems(ctx, userID, `SELECT `+itemColumns+` FROM portfolio_items WHERE portfolio_id=$1 ORDER BY created`, portfolioID)
}

// LoadItem returns one item of a portfolio
func LoadItem(ctx context.Context, userID string, portfolioID, itemID uuid.UUID) (*Item, error) {
	items, err := queryItems(ctx, userID, `SELECT `+itemColumns+` FROM portfolio_items WHERE id=$1 AND portfolio_id=$2`, itemID, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrItemNotFound
	}
	return items[0], nil
}

// Save validates the item and inserts or updates it. An existing item that
// belongs to a different portfolio is reported as not found.
func (item *Item) Save(ctx context.Context, userID string) error {
	subLog := log.With().Str("UserID", userID).Object("Item", item).Logger()
	if userID == "" {
		return ErrEmptyUserID
	}

	if err := item.Validate(); err != nil {
		return err
	}

	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to marshal item metadata")
		return err
	}

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return err
	}

	item.LastChanged = time.Now()
	itemSQL := `
	INSERT INTO portfolio_items (
		"id",
		"portfolio_id",
		"listing_id",
		"item_type",
		"status",
		"acquisition_price",
		"current_value",
		"acquisition_date",
		"metadata",
		"created",
		"lastchanged"
	) VALUES (
		$1,
		$2,
		$3,
		$4,
		$5,
		$6,
		$7,
		$8,
		$9,
		$10,
		$11
	) ON CONFLICT ON CONSTRAINT portfolio_items_pkey
	DO UPDATE SET
		listing_id=$3,
		item_type=$4,
		status=$5,
		acquisition_price=$6,
		current_value=$7,
		acquisition_date=$8,
		metadata=$9,
		lastchanged=$11
	WHERE portfolio_items.portfolio_id=$2`
	tag, err := trx.Exec(ctx, itemSQL, item.ID, item.PortfolioID, item.ListingID, string(item.Kind), string(item.Status),
		item.AcquisitionPrice, item.CurrentValue, item.AcquisitionDate, metadata, item.Created, item.LastChanged)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", itemSQL).Msg("failed to save portfolio item")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return ErrItemNotFound
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit portfolio item")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	return nil
}

// DeleteItem removes one item from a portfolio
func DeleteItem(ctx context.Context, userID string, portfolioID, itemID uuid.UUID) error {
	subLog := log.With().Str("UserID", userID).Str("PortfolioID", portfolioID.String()).Str("ItemID", itemID.String()).Logger()
	if userID == "" {
		return ErrEmptyUserID
	}

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return err
	}

	tag, err := trx.Exec(ctx, `DELETE FROM portfolio_items WHERE id=$1 AND portfolio_id=$2`, itemID, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not delete portfolio item")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return ErrItemNotFound
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit delete")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	return nil
}
