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

	"github.com/gridbazaar/gb-api/common"
)

type ProfileResponse struct {
	UserID  string              `json:"userId"`
	Profile *common.UserProfile `json:"profile"`
}

// GetProfile returns the caller's identity record from the auth provider
func GetProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Str("Endpoint", "GetProfile").Logger()

	profile, err := common.GetUserProfile(c.UserContext(), userID)
	if err != nil {
		subLog.Warn().Err(err).Msg("could not retrieve user profile")
		return sendError(c, err)
	}

	return c.JSON(ProfileResponse{
		UserID:  userID,
		Profile: profile,
	})
}
