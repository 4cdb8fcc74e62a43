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

package handler

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/database"
)

type Activity struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolioId"`
	Date        time.Time `json:"date"`
	Activity    string    `json:"message"`
	Tags        []string  `json:"tags"`
}

const activityColumns = `SELECT
		id::text,
		portfolio_id::text,
		event_date,
		activity,
		tags
	FROM activity`

// GetAllActivity returns the caller's activity feed, newest first
func GetAllActivity(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sqlQuery := activityColumns + ` WHERE user_id=$1 ORDER BY event_date DESC`
	return getActivity(c, "GetAllActivity", sqlQuery, userID)
}

// GetPortfolioActivity returns the activity recorded against one portfolio
func GetPortfolioActivity(c *fiber.Ctx) error {
	portfolioID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sendError(c, ErrInvalidID)
	}
	userID := c.Locals("userID").(string)
	sqlQuery := activityColumns + ` WHERE portfolio_id=$1 AND user_id=$2 ORDER BY event_date DESC`
	return getActivity(c, "GetPortfolioActivity", sqlQuery, portfolioID, userID)
}

func getActivity(c *fiber.Ctx, endpoint, sqlQuery string, args ...any) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", endpoint).Logger()

	limit, offset, err := parseRange(c.Get("Range"))
	if err != nil {
		return rangeError(c)
	}
	sqlQuery = fmt.Sprintf("%s LIMIT %d OFFSET %d", sqlQuery, limit, offset)

	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return sendError(c, err)
	}

	rows, err := trx.Query(ctx, sqlQuery, args...)
	if err != nil {
		subLog.Warn().Stack().Err(err).Str("Query", sqlQuery).Msg("database query failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return sendError(c, err)
	}

	activities := make([]*Activity, 0, 10)
	for rows.Next() {
		a := &Activity{}
		if err := rows.Scan(&a.ID, &a.PortfolioID, &a.Date, &a.Activity, &a.Tags); err != nil {
			subLog.Warn().Err(err).Msg("could not scan activity")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return sendError(c, err)
		}
		activities = append(activities, a)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit database transaction")
	}

	setContentRange(c, offset, limit, len(activities))
	return c.JSON(activities)
}
