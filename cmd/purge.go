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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridbazaar/gb-api/database"
)

var purgeUser string

func init() {
	purgeCmd.Flags().Int("max-age-days", 365, "delete activity older than this many days")
	bindFlag(purgeCmd.Flags(), "activity.max_age_days", "GB_ACTIVITY_MAX_AGE_DAYS", "max-age-days")

	purgeCmd.Flags().StringVar(&purgeUser, "user", "", "only purge activity of the specified user")

	rootCmd.AddCommand(purgeCmd)
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete activity older than activity.max_age_days",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		maxAge := time.Now().AddDate(0, 0, -viper.GetInt("activity.max_age_days"))

		for _, u := range usersOrAll(ctx, purgeUser) {
			subLog := log.With().Str("UserID", u).Logger()
			trx, err := database.TrxForUser(ctx, u)
			if err != nil {
				subLog.Error().Err(err).Msg("could not get database transaction")
				continue
			}

			tag, err := trx.Exec(ctx, "DELETE FROM activity WHERE event_date < $1", maxAge)
			if err != nil {
				subLog.Error().Err(err).Msg("could not delete activity")
				if err := trx.Rollback(ctx); err != nil {
					subLog.Error().Err(err).Msg("could not rollback transaction")
				}
				continue
			}

			if err := trx.Commit(ctx); err != nil {
				subLog.Error().Err(err).Msg("could not commit activity purge")
				continue
			}

			subLog.Info().Int64("NumDeleted", tag.RowsAffected()).Time("MaxAge", maxAge).Msg("purged activity")
		}
	},
}
