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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/observability/opentelemetry"
)

// Activity is an entry in a user's activity feed
type Activity struct {
	Date time.Time
	Msg  string
	Tags []string
}

const portfolioColumns = `id, name, description, portfolio_type, risk_tolerance, target_allocation, created, lastchanged`

func scanPortfolio(rows pgx.Rows, userID string) (*Portfolio, error) {
	var kind, tolerance string
	var targets []byte

	p := &Portfolio{UserID: userID}
	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &kind, &tolerance, &targets, &p.Created, &p.LastChanged); err != nil {
		return nil, err
	}

	p.Kind = PortfolioType(kind)
	p.RiskTolerance = RiskTolerance(tolerance)
	p.TargetAllocation = Allocation{}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &p.TargetAllocation); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// LoadPortfolios returns the requested portfolios owned by userID, or all of
// them when no ids are given
func LoadPortfolios(ctx context.Context, userID string, portfolioIDs ...uuid.UUID) ([]*Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.LoadPortfolios")
	defer span.End()

	subLog := log.With().Str("UserID", userID).Int("NumPortfolioIDs", len(portfolioIDs)).Logger()
	if userID == "" {
		subLog.Error().Stack().Msg("userID cannot be an empty string")
		return nil, ErrEmptyUserID
	}

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to create database transaction for user")
		span.RecordError(err)
		span.SetStatus(codes.Error, "database unavailable")
		return nil, err
	}

	var rows pgx.Rows
	if len(portfolioIDs) > 0 {
		portfolioSQL := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = ANY ($1) AND user_id=$2 ORDER BY created`
		rows, err = trx.Query(ctx, portfolioSQL, portfolioIDs, userID)
	} else {
		portfolioSQL := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id=$1 ORDER BY created`
		rows, err = trx.Query(ctx, portfolioSQL, userID)
	}

	if err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not load portfolio from database")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	resultSet := make([]*Portfolio, 0, len(portfolioIDs))
	for rows.Next() {
		p, err := scanPortfolio(rows, userID)
		if err != nil {
			subLog.Warn().Stack().Err(err).Msg("could not scan portfolio")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		resultSet = append(resultSet, p)
	}

	if err := rows.Err(); err != nil {
		subLog.Warn().Stack().Err(err).Msg("reading portfolio rows failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction to database")
	}

	if len(resultSet) < len(portfolioIDs) {
		return nil, ErrPortfolioNotFound
	}

	span.SetAttributes(attribute.Int("NumPortfolios", len(resultSet)))
	return resultSet, nil
}

// LoadPortfolio loads a single portfolio
func LoadPortfolio(ctx context.Context, userID string, portfolioID uuid.UUID) (*Portfolio, error) {
	portfolios, err := LoadPortfolios(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	return portfolios[0], nil
}

// Save inserts the portfolio or updates it if it already exists
func (p *Portfolio) Save(ctx context.Context, userID string) error {
	p.UserID = userID
	subLog := log.With().Str("PortfolioID", p.ID.String()).Str("UserID", userID).Logger()
	if userID == "" {
		return ErrEmptyUserID
	}

	targets, err := json.Marshal(p.TargetAllocation)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to marshal target allocation")
		return err
	}

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return err
	}

	p.LastChanged = time.Now()
	portfolioSQL := `
	INSERT INTO portfolios (
		"id",
		"user_id",
		"name",
		"description",
		"portfolio_type",
		"risk_tolerance",
		"target_allocation",
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
		$9
	) ON CONFLICT ON CONSTRAINT portfolios_pkey
	DO UPDATE SET
		name=$3,
		description=$4,
		portfolio_type=$5,
		risk_tolerance=$6,
		target_allocation=$7,
		lastchanged=$9`
	_, err = trx.Exec(ctx, portfolioSQL, p.ID, userID, p.Name, p.Description, string(p.Kind),
		string(p.RiskTolerance), targets, p.Created, p.LastChanged)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", portfolioSQL).Msg("failed to save portfolio")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := p.saveActivitiesWithTransaction(ctx, trx); err != nil {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit portfolio transaction")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	return nil
}

// DeletePortfolio removes a portfolio together with all of its items
func DeletePortfolio(ctx context.Context, userID string, portfolioID uuid.UUID) error {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).Str("UserID", userID).Logger()
	if userID == "" {
		return ErrEmptyUserID
	}

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return err
	}

	if _, err := trx.Exec(ctx, `DELETE FROM portfolio_items WHERE portfolio_id=$1`, portfolioID); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not delete portfolio items")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	tag, err := trx.Exec(ctx, `DELETE FROM portfolios WHERE id=$1 AND user_id=$2`, portfolioID, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not delete portfolio")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return ErrPortfolioNotFound
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit delete")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	subLog.Info().Msg("deleted portfolio")
	return nil
}

// AddActivity queues an activity feed entry; it is written on the next save
func (p *Portfolio) AddActivity(date time.Time, msg string, tags []string) {
	if p.activities == nil {
		p.activities = make([]*Activity, 0, 5)
	}

	p.activities = append(p.activities, &Activity{
		Date: date,
		Msg:  msg,
		Tags: tags,
	})
}

// SaveActivities writes queued activity entries in their own transaction
func (p *Portfolio) SaveActivities(ctx context.Context) error {
	if len(p.activities) == 0 {
		return nil
	}

	subLog := log.With().Str("PortfolioID", p.ID.String()).Str("UserID", p.UserID).Logger()

	trx, err := database.TrxForUser(ctx, p.UserID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return err
	}

	if err := p.saveActivitiesWithTransaction(ctx, trx); err != nil {
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit activity transaction")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	return nil
}

func (p *Portfolio) saveActivitiesWithTransaction(ctx context.Context, trx pgx.Tx) error {
	for _, activity := range p.activities {
		sql := `INSERT INTO activity ("user_id", "portfolio_id", "event_date", "activity", "tags") VALUES ($1, $2, $3, $4, $5)`
		if _, err := trx.Exec(ctx, sql, p.UserID, p.ID, activity.Date, activity.Msg, activity.Tags); err != nil {
			log.Error().Err(err).Str("PortfolioID", p.ID.String()).Msg("could not create activity")
			return err
		}
	}
	p.activities = nil
	return nil
}
