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
	"regexp"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// MaxPageSize caps the number of rows a single Range request may ask for
const MaxPageSize = 100

var rangeRegex = regexp.MustCompile(`((\w+)=)?(\d+)-(\d+)`)

// parseRange reads an `items=begin-end` header and returns limit and offset
func parseRange(r string) (int, int, error) {
	if r == "" {
		return MaxPageSize, 0, nil
	}

	res := rangeRegex.FindStringSubmatch(r)
	if res == nil {
		return 10, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	if res[2] != "" && res[2] != "items" {
		return 10, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	begin, err := strconv.ParseInt(res[3], 10, 32)
	if err != nil {
		log.Error().Err(err).Msg("could not parse range begin")
		return 10, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	end, err := strconv.ParseInt(res[4], 10, 32)
	if err != nil {
		log.Error().Err(err).Msg("could not parse range end")
		return 10, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	if end < begin {
		log.Error().Int64("Begin", begin).Int64("End", end).Msg("range error: end < begin")
		return 10, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	limit := int(end - begin + 1)
	offset := int(begin)

	if limit > MaxPageSize {
		log.Error().Int("Limit", limit).Msg("range exceeds maximum page size")
		return 10, 0, fiber.ErrRequestedRangeNotSatisfiable
	}

	return limit, offset, nil
}

// setContentRange reports which rows of the collection are in the response;
// the total is unknown while a full page is returned. An empty page names no
// rows, only the total.
func setContentRange(c *fiber.Ctx, offset, limit, n int) {
	if n == 0 {
		c.Set("Content-Range", fmt.Sprintf("items */%d", offset))
		return
	}

	count := "*"
	if n < limit {
		count = fmt.Sprintf("%d", n+offset)
	}
	c.Set("Content-Range", fmt.Sprintf("items %d-%d/%s", offset, offset+n-1, count))
}

func rangeError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestedRangeNotSatisfiable).JSON(fiber.Map{"status": "error", "message": "invalid range"})
}
