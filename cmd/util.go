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

package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/database"
)

var ErrInvalidPortfolioArg = errors.New("portfolio must be specified as {userID}:{portfolioID}")

// parsePortfolioArg splits a {userID}:{portfolioID} argument. User ids may
// themselves contain a colon so the portfolio id is taken from the end.
func parsePortfolioArg(arg string) (string, uuid.UUID, error) {
	idx := strings.LastIndex(arg, ":")
	if idx <= 0 || idx == len(arg)-1 {
		return "", uuid.Nil, ErrInvalidPortfolioArg
	}

	portfolioID, err := uuid.Parse(arg[idx+1:])
	if err != nil {
		return "", uuid.Nil, ErrInvalidPortfolioArg
	}

	return arg[:idx], portfolioID, nil
}

// usersOrAll returns user when set, otherwise every user known to the database
func usersOrAll(ctx context.Context, user string) []string {
	if user != "" {
		return []string{user}
	}

	users, err := database.GetUsers(ctx)
	if err != nil {
		log.Panic().Err(err).Msg("could not load users from database")
	}
	return users
}
