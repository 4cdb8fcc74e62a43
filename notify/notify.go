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

// Package notify emails rebalance alerts for portfolios that have drifted
// away from their target allocation
package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/viper"

	"github.com/gridbazaar/gb-api/portfolio"
)

var (
	ErrInvalidSchedule = errors.New("invalid notification schedule")
	ErrSendFailed      = errors.New("email provider rejected message")
)

// DefaultThreshold is used when notify.threshold is unset
const DefaultThreshold = 70.0

// maxListedActions bounds how many recommendations appear in one email
const maxListedActions = 3

// Due reports whether schedule (standard five field cron syntax or a
// descriptor such as @weekly) fires at any time during forDate's day
func Due(schedule string, forDate time.Time) (bool, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidSchedule, err)
	}

	start := time.Date(forDate.Year(), forDate.Month(), forDate.Day(), 0, 0, 0, 0, forDate.Location())
	next := sched.Next(start.Add(-time.Nanosecond))
	return next.Before(start.AddDate(0, 0, 1)), nil
}

// Threshold returns the configured balance score below which alerts are sent
func Threshold() float64 {
	if viper.IsSet("notify.threshold") {
		return viper.GetFloat64("notify.threshold")
	}
	return DefaultThreshold
}

// Alert is a rebalance notice for one portfolio
type Alert struct {
	ForDate   time.Time
	Portfolio *portfolio.Portfolio
	Analysis  *portfolio.Analysis
}

// NeedsAlert reports whether an analysis scores below threshold. Portfolios
// without active items are never alerted.
func NeedsAlert(analysis *portfolio.Analysis, threshold float64) bool {
	if analysis == nil || analysis.ActiveCount == 0 {
		return false
	}
	return analysis.BalanceScore < threshold
}

func (a *Alert) actions() string {
	actions := make([]string, 0, maxListedActions)
	for _, d := range a.Analysis.Recommendations {
		if d.Priority == portfolio.PriorityLow {
			continue
		}
		actions = append(actions, fmt.Sprintf("%s: %s", d.Sector, d.Action))
		if len(actions) == maxListedActions {
			break
		}
	}
	return strings.Join(actions, "; ")
}

// Message builds the templated sendgrid message for the alert
func (a *Alert) Message(userFullName, emailAddress string) *mail.SGMailV3 {
	m := mail.NewV3Mail()

	e := mail.NewEmail(viper.GetString("email.name"), viper.GetString("email.address"))
	m.SetFrom(e)

	m.SetTemplateID(viper.GetString("sendgrid.template"))

	person := mail.NewPersonalization()
	person.AddTos(mail.NewEmail(userFullName, emailAddress))

	person.SetDynamicTemplateData("portfolioName", a.Portfolio.Name)
	person.SetDynamicTemplateData("forDate", a.ForDate.Format("January 2, 2006"))
	person.SetDynamicTemplateData("balanceScore", fmt.Sprintf("%.0f", a.Analysis.BalanceScore))
	person.SetDynamicTemplateData("totalValue", fmt.Sprintf("%.2f", a.Analysis.Valuation.TotalCurrentValue))
	person.SetDynamicTemplateData("actions", a.actions())

	m.AddPersonalizations(person)
	return m
}

// SendEmail delivers the alert through sendgrid
func (a *Alert) SendEmail(userFullName, emailAddress string) error {
	subLog := log.With().Str("UserFullName", userFullName).Str("EmailAddress", emailAddress).Str("PortfolioName", a.Portfolio.Name).Str("PortfolioID", a.Portfolio.ID.String()).Logger()
	subLog.Info().Float64("BalanceScore", a.Analysis.BalanceScore).Msg("sending rebalance alert")

	request := sendgrid.GetRequest(viper.GetString("sendgrid.key"), "/v3/mail/send", "https://api.sendgrid.com")
	request.Method = "POST"
	request.Body = mail.GetRequestBody(a.Message(userFullName, emailAddress))

	response, err := sendgrid.API(request)
	if err != nil {
		subLog.Error().Err(err).Msg("could not send message")
		return err
	}

	if response.StatusCode >= 300 {
		subLog.Error().Int("StatusCode", response.StatusCode).Str("Body", response.Body).Msg("sendgrid refused message")
		return ErrSendFailed
	}

	subLog.Info().Int("StatusCode", response.StatusCode).Strs("MessageID", response.Headers["X-Message-Id"]).Msg("sent rebalance alert")
	return nil
}
