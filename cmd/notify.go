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

	"github.com/gridbazaar/gb-api/common"
	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/notify"
	"github.com/gridbazaar/gb-api/portfolio"
)

var notifyUser string
var notifyDate string
var notifyTest bool

func init() {
	flags := notifyCmd.Flags()

	flags.String("schedule", "@daily", "cron schedule controlling which days alerts are sent")
	bindFlag(flags, "notify.schedule", "GB_NOTIFY_SCHEDULE", "schedule")

	flags.Float64("threshold", notify.DefaultThreshold, "send alerts for portfolios whose balance score is below this value")
	bindFlag(flags, "notify.threshold", "GB_NOTIFY_THRESHOLD", "threshold")

	flags.String("sendgrid-key", "", "sendgrid API key")
	bindFlag(flags, "sendgrid.key", "SENDGRID_API_KEY", "sendgrid-key")

	flags.String("sendgrid-template", "", "sendgrid dynamic template id")
	bindFlag(flags, "sendgrid.template", "SENDGRID_TEMPLATE", "sendgrid-template")

	flags.String("email-name", "GridBazaar", "name alerts are sent from")
	bindFlag(flags, "email.name", "GB_EMAIL_NAME", "email-name")

	flags.String("email-address", "alerts@gridbazaar.io", "address alerts are sent from")
	bindFlag(flags, "email.address", "GB_EMAIL_ADDRESS", "email-address")

	flags.StringVar(&notifyUser, "user", "", "only notify the specified user")
	flags.StringVarP(&notifyDate, "date", "d", "", "date to run notifications for 2006-01-02")
	flags.BoolVarP(&notifyTest, "test", "t", false, "evaluate alerts without sending email")

	rootCmd.AddCommand(notifyCmd)
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Email rebalance alerts for unbalanced portfolios",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		forDate := time.Now()
		if notifyDate != "" {
			var err error
			forDate, err = time.Parse("2006-01-02", notifyDate)
			if err != nil {
				log.Fatal().Err(err).Str("DateStr", notifyDate).Msg("could not parse date with format 2006-01-02")
			}
		}

		schedule := viper.GetString("notify.schedule")
		due, err := notify.Due(schedule, forDate)
		if err != nil {
			log.Fatal().Err(err).Str("Schedule", schedule).Msg("invalid notify schedule")
		}
		if !due {
			log.Info().Str("Schedule", schedule).Time("ForDate", forDate).Msg("notifications not due")
			return
		}

		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		threshold := notify.Threshold()
		sent := 0
		for _, userID := range usersOrAll(ctx, notifyUser) {
			sent += notifyUserPortfolios(ctx, userID, forDate, threshold)
		}

		log.Info().Int("NumAlerts", sent).Bool("Test", notifyTest).Time("ForDate", forDate).Msg("notifications complete")
	},
}

func notifyUserPortfolios(ctx context.Context, userID string, forDate time.Time, threshold float64) int {
	subLog := log.With().Str("UserID", userID).Logger()

	portfolios, err := portfolio.LoadPortfolios(ctx, userID)
	if err != nil {
		subLog.Error().Err(err).Msg("could not load portfolios")
		return 0
	}

	var profile *common.UserProfile
	sent := 0
	for _, p := range portfolios {
		items, err := portfolio.LoadItems(ctx, userID, p.ID)
		if err != nil {
			subLog.Error().Err(err).Str("PortfolioID", p.ID.String()).Msg("could not load items")
			continue
		}

		analysis := p.Analyze(ctx, items)
		if !notify.NeedsAlert(analysis, threshold) {
			continue
		}

		if notifyTest {
			subLog.Info().Object("Portfolio", p).Object("Analysis", analysis).Msg("would send alert")
			sent++
			continue
		}

		if profile == nil {
			profile, err = common.GetUserProfile(ctx, userID)
			if err != nil {
				subLog.Error().Err(err).Msg("could not load user profile")
				return sent
			}
		}

		alert := &notify.Alert{ForDate: forDate, Portfolio: p, Analysis: analysis}
		if err := alert.SendEmail(profile.Name, profile.Email); err != nil {
			continue
		}
		sent++
	}

	return sent
}
