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
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/database"
)

type Announcement struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Expires time.Time `json:"expires"`
	Message string    `json:"message"`
	Tags    []string  `json:"tags"`
}

// GetAnnouncements lists platform announcements that have not yet expired
func GetAnnouncements(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "GetAnnouncements").Logger()
	query := `SELECT
		id::text,
		event_date,
		expires,
		announcement,
		tags
	FROM announcements WHERE expires > now() ORDER BY event_date DESC`
	trx, err := database.TrxForUser(ctx, userID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return sendError(c, err)
	}

	rows, err := trx.Query(ctx, query)
	if err != nil {
		subLog.Warn().Stack().Err(err).Str("Query", query).Msg("database query failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return sendError(c, err)
	}

	announcements := make([]*Announcement, 0, 10)
	for rows.Next() {
		a := &Announcement{}
		if err := rows.Scan(&a.ID, &a.Date, &a.Expires, &a.Message, &a.Tags); err != nil {
			subLog.Warn().Err(err).Msg("could not scan announcement")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return sendError(c, err)
		}
		announcements = append(announcements, a)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit database transaction")
	}
	return c.JSON(announcements)
}
