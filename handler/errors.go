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
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gridbazaar/gb-api/common"
	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/listing"
	"github.com/gridbazaar/gb-api/messenger"
	"github.com/gridbazaar/gb-api/portfolio"
	"github.com/gridbazaar/gb-api/scoring"
)

var (
	ErrInvalidID   = errors.New("invalid id")
	ErrInvalidBody = errors.New("could not parse request body")
)

var badRequest = []error{
	ErrInvalidID,
	ErrInvalidBody,
	portfolio.ErrEmptyName,
	portfolio.ErrInvalidPortfolioType,
	portfolio.ErrInvalidRiskTolerance,
	portfolio.ErrNegativeTarget,
	portfolio.ErrInvalidItemType,
	portfolio.ErrInvalidStatus,
	portfolio.ErrInvalidRiskLevel,
	portfolio.ErrNegativeValue,
	portfolio.ErrPortfolioMismatch,
	listing.ErrInvalidKind,
	listing.ErrInvalidState,
	listing.ErrInvalidSort,
	listing.ErrInvalidRange,
	scoring.ErrUnknownKind,
}

var notFound = []error{
	portfolio.ErrPortfolioNotFound,
	portfolio.ErrItemNotFound,
	listing.ErrNotFound,
	common.ErrProfileUserNotFound,
}

var unauthorized = []error{
	portfolio.ErrEmptyUserID,
	database.ErrEmptyUserID,
}

var unavailable = []error{
	database.ErrNoPool,
	database.ErrUnavailable,
	messenger.ErrNotConnected,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps a domain error onto an HTTP status code
func statusFor(err error) int {
	switch {
	case isAny(err, unauthorized):
		return fiber.StatusUnauthorized
	case isAny(err, badRequest):
		return fiber.StatusBadRequest
	case isAny(err, notFound):
		return fiber.StatusNotFound
	case isAny(err, unavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// sendError writes the JSON error envelope. Internal errors are not echoed
// back to the caller.
func sendError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case fiber.StatusInternalServerError:
		msg = "internal server error"
	case fiber.StatusServiceUnavailable:
		msg = "service unavailable"
	}
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
}
