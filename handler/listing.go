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
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/listing"
	"github.com/gridbazaar/gb-api/scoring"
)

// Scorer produces listing scores; replace it to plug in a real model
var Scorer scoring.Strategy = scoring.NewMockStrategy()

// ListListings browses the marketplace catalog
func ListListings(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "ListListings").Logger()

	limit, offset, err := parseRange(c.Get("Range"))
	if err != nil {
		return rangeError(c)
	}

	filter, err := listing.ParseFilter(func(key string) string { return c.Query(key) })
	if err != nil {
		subLog.Warn().Err(err).Msg("invalid listing filter")
		return sendError(c, err)
	}

	listings, err := listing.Search(c.UserContext(), userID, filter, limit, offset)
	if err != nil {
		subLog.Error().Err(err).Msg("listing search failed")
		return sendError(c, err)
	}

	setContentRange(c, offset, limit, len(listings))
	return c.JSON(listings)
}

// GetListing returns one listing
func GetListing(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sendError(c, ErrInvalidID)
	}

	l, err := listing.Get(c.UserContext(), userID, id)
	if err != nil {
		log.Warn().Err(err).Str("UserID", userID).Str("ListingID", id.String()).Msg("could not get listing")
		return sendError(c, err)
	}

	return c.JSON(l)
}

// ScoreListing scores a listing with the configured Scorer
func ScoreListing(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "ScoreListing").Logger()

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sendError(c, ErrInvalidID)
	}

	kind, err := scoring.ParseKind(c.Params("kind"))
	if err != nil {
		return sendError(c, err)
	}

	// only score listings the caller can see
	if _, err := listing.Get(c.UserContext(), userID, id); err != nil {
		subLog.Warn().Err(err).Str("ListingID", id.String()).Msg("could not get listing")
		return sendError(c, err)
	}

	result, err := Scorer.Score(c.UserContext(), scoring.Subject{Kind: kind, ID: id.String()})
	if err != nil {
		subLog.Error().Err(err).Str("ListingID", id.String()).Msg("scoring failed")
		return sendError(c, err)
	}

	return c.JSON(result)
}
