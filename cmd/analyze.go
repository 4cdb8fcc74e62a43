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
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/portfolio"
	"github.com/gridbazaar/gb-api/report"
)

var analyzeWidth int
var analyzeRaw bool

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeWidth, "width", "w", 100, "wrap the report at this many columns")
	analyzeCmd.Flags().BoolVar(&analyzeRaw, "markdown", false, "print markdown instead of rendering it")

	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze {userID}:{portfolioID}",
	Short: "Print the valuation and rebalance report for a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		userID, portfolioID, err := parsePortfolioArg(args[0])
		if err != nil {
			return err
		}

		if err := database.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("could not connect to database")
			return err
		}

		p, err := portfolio.LoadPortfolio(ctx, userID, portfolioID)
		if err != nil {
			return err
		}

		items, err := portfolio.LoadItems(ctx, userID, portfolioID)
		if err != nil {
			return err
		}

		analysis := p.Analyze(ctx, items)

		if analyzeRaw {
			fmt.Print(report.Markdown(p, analysis))
			return nil
		}

		out, err := report.Render(p, analysis, analyzeWidth)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}
