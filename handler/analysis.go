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
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/messenger"
	"github.com/gridbazaar/gb-api/portfolio"
)

// GetAnalysis returns valuation, allocation and rebalance recommendations
// for a portfolio
func GetAnalysis(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "GetAnalysis").Logger()

	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	p, err := portfolio.LoadPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return sendError(c, err)
	}

	items, err := portfolio.LoadItems(ctx, userID, portfolioID)
	if err != nil {
		subLog.Error().Err(err).Str("PortfolioID", portfolioID.String()).Msg("could not load items")
		return sendError(c, err)
	}

	analysis, err := p.CachedAnalysis(ctx, items)
	if err != nil {
		subLog.Error().Err(err).Str("PortfolioID", portfolioID.String()).Msg("analysis failed")
		return sendError(c, err)
	}

	return c.JSON(analysis)
}

// RevaluePortfolio queues a background refresh of a portfolio's analysis
func RevaluePortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "RevaluePortfolio").Logger()

	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	if _, err := portfolio.LoadPortfolio(c.UserContext(), userID, portfolioID); err != nil {
		return sendError(c, err)
	}

	if err := messenger.PublishRevalueRequest(userID, portfolioID); err != nil {
		subLog.Error().Err(err).Str("PortfolioID", portfolioID.String()).Msg("could not queue revalue request")
		return sendError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "portfolioId": portfolioID})
}
