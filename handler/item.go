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

type itemRequest struct {
	ListingID        *uuid.UUID              `json:"listingId"`
	Kind             *portfolio.ItemType     `json:"itemType"`
	Status           *portfolio.ItemStatus   `json:"status"`
	AcquisitionPrice *float64                `json:"acquisitionPrice"`
	CurrentValue     *float64                `json:"currentValue"`
	AcquisitionDate  *time.Time              `json:"acquisitionDate"`
	Metadata         *portfolio.ItemMetadata `json:"metadata"`
}

func (req *itemRequest) apply(item *portfolio.Item) {
	if req.ListingID != nil {
		item.ListingID = req.ListingID
	}
	if req.Kind != nil {
		item.Kind = *req.Kind
	}
	if req.Status != nil {
		item.Status = *req.Status
	}
	if req.AcquisitionPrice != nil {
		item.AcquisitionPrice = req.AcquisitionPrice
	}
	if req.CurrentValue != nil {
		item.CurrentValue = req.CurrentValue
	}
	if req.AcquisitionDate != nil {
		item.AcquisitionDate = req.AcquisitionDate
	}
	if req.Metadata != nil {
		item.Metadata = *req.Metadata
	}
}

func parseItemID(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	itemID, err := uuid.Parse(c.Params("itemId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidID
	}
	return portfolioID, itemID, nil
}

// ListItems lists every item in a portfolio
func ListItems(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	items, err := portfolio.LoadItems(c.UserContext(), userID, portfolioID)
	if err != nil {
		log.Error().Err(err).Str("UserID", userID).Str("PortfolioID", portfolioID.String()).Msg("could not load items")
		return sendError(c, err)
	}

	return c.JSON(items)
}

// CreateItem adds an item to a portfolio the caller owns
func CreateItem(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "CreateItem").Logger()

	portfolioID, err := parsePortfolioID(c)
	if err != nil {
		return sendError(c, err)
	}

	req := itemRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		subLog.Warn().Err(err).Msg("bad request body")
		return sendError(c, ErrInvalidBody)
	}

	p, err := portfolio.LoadPortfolio(c.UserContext(), userID, portfolioID)
	if err != nil {
		return sendError(c, err)
	}

	kind := portfolio.InvestmentItem
	if req.ListingID != nil {
		kind = portfolio.ListingItem
	}
	item := portfolio.NewItem(p.ID, kind)
	req.apply(item)

	if err := item.Save(c.UserContext(), userID); err != nil {
		subLog.Warn().Err(err).Str("PortfolioID", portfolioID.String()).Msg("could not save item")
		return sendError(c, err)
	}

	recordItemActivity(c, userID, p.ID, fmt.Sprintf("Added %s item in %s", item.Kind, item.Sector()), "added")

	return c.Status(fiber.StatusCreated).JSON(item)
}

// UpdateItem applies the fields present in the request body
func UpdateItem(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "UpdateItem").Logger()

	portfolioID, itemID, err := parseItemID(c)
	if err != nil {
		return sendError(c, err)
	}

	req := itemRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		subLog.Warn().Err(err).Msg("bad request body")
		return sendError(c, ErrInvalidBody)
	}

	item, err := portfolio.LoadItem(c.UserContext(), userID, portfolioID, itemID)
	if err != nil {
		return sendError(c, err)
	}

	prevStatus := item.Status
	req.apply(item)
	if err := item.Save(c.UserContext(), userID); err != nil {
		subLog.Warn().Err(err).Str("ItemID", itemID.String()).Msg("could not save item")
		return sendError(c, err)
	}

	if item.Status != prevStatus {
		recordItemActivity(c, userID, portfolioID,
			fmt.Sprintf("%s item in %s changed from %s to %s", item.Kind, item.Sector(), prevStatus, item.Status), "status")
	}

	return c.JSON(item)
}

// DeleteItem removes an item from a portfolio
func DeleteItem(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	portfolioID, itemID, err := parseItemID(c)
	if err != nil {
		return sendError(c, err)
	}

	if err := portfolio.DeleteItem(c.UserContext(), userID, portfolioID, itemID); err != nil {
		return sendError(c, err)
	}

	recordItemActivity(c, userID, portfolioID, fmt.Sprintf("Removed item %s", itemID), "removed")

	return c.JSON(fiber.Map{"status": "success"})
}

// recordItemActivity writes a feed entry for an item change. Failures are
// logged only; the item change itself already committed.
func recordItemActivity(c *fiber.Ctx, userID string, portfolioID uuid.UUID, msg, tag string) {
	p := &portfolio.Portfolio{ID: portfolioID, UserID: userID}
	p.AddActivity(time.Now(), msg, []string{"item", tag})
	if err := p.SaveActivities(c.UserContext()); err != nil {
		log.Warn().Err(err).Str("UserID", userID).Str("PortfolioID", portfolioID.String()).Msg("could not record activity")
	}
}
