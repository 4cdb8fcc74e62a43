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

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/portfolio"
)

type portfolioRequest struct {
	Name             *string                  `json:"name"`
	Description      *string                  `json:"description"`
	Kind             *portfolio.PortfolioType `json:"portfolioType"`
	RiskTolerance    *portfolio.RiskTolerance `json:"riskTolerance"`
	TargetAllocation portfolio.Allocation     `json:"targetAllocation"`
}

func (req *portfolioRequest) apply(p *portfolio.Portfolio) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Kind != nil {
		p.Kind = *req.Kind
	}
	if req.RiskTolerance != nil {
		p.RiskTolerance = *req.RiskTolerance
	}
	if req.TargetAllocation != nil {
		p.TargetAllocation = req.TargetAllocation
	}
}

func parsePortfolioID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// ListPortfolios lists all portfolios owned by the caller
func ListPortfolios(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	portfolios, err := portfolio.LoadPortfolios(c.UserContext(), userID)
	if err != nil {
		log.Error().Err(err).Str("UserID", userID).Str("Endpoint", "ListPortfolios").Msg("could not load portfolios")
		return sendError(c, err)
	}

	return c.JSON(portfolios)
}

// GetPortfolio returns one portfolio
func GetPortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	p, err := portfolio.LoadPortfolio(c.UserContext(), userID, portfolioID)
	if err != nil {
		log.Warn().Err(err).Str("UserID", userID).Str("PortfolioID", portfolioID.String()).Msg("could not load portfolio")
		return sendError(c, err)
	}

	return c.JSON(p)
}

// CreatePortfolio creates a portfolio from the request body
func CreatePortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "CreatePortfolio").Logger()

	req := portfolioRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		subLog.Warn().Err(err).Msg("bad request body")
		return sendError(c, ErrInvalidBody)
	}

	p := portfolio.New(userID, "")
	req.apply(p)
	if err := p.Validate(); err != nil {
		return sendError(c, err)
	}

	p.AddActivity(time.Now(), fmt.Sprintf("Created portfolio %s", p.Name), []string{"portfolio"})
	if err := p.Save(c.UserContext(), userID); err != nil {
		subLog.Error().Err(err).Msg("could not save portfolio")
		return sendError(c, err)
	}

	subLog.Info().Object("Portfolio", p).Msg("created portfolio")
	return c.Status(fiber.StatusCreated).JSON(p)
}

// UpdatePortfolio applies the fields present in the request body
func UpdatePortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "UpdatePortfolio").Logger()

	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	req := portfolioRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		subLog.Warn().Err(err).Str("PortfolioID", portfolioID.String()).Msg("bad request body")
		return sendError(c, ErrInvalidBody)
	}

	p, err := portfolio.LoadPortfolio(c.UserContext(), userID, portfolioID)
	if err != nil {
		return sendError(c, err)
	}

	req.apply(p)
	if err := p.Validate(); err != nil {
		return sendError(c, err)
	}

	if req.TargetAllocation != nil {
		p.AddActivity(time.Now(), "Changed target allocation", []string{"portfolio", "targets"})
	}
	if err := p.Save(c.UserContext(), userID); err != nil {
		subLog.Error().Err(err).Str("PortfolioID", portfolioID.String()).Msg("could not save portfolio")
		return sendError(c, err)
	}

	return c.JSON(p)
}

// DeletePortfolio deletes a portfolio and its items
func DeletePortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	if err := portfolio.DeletePortfolio(c.UserContext(), userID, portfolioID); err != nil {
		return sendError(c, err)
	}

	return c.JSON(fiber.Map{"status": "success"})
}
