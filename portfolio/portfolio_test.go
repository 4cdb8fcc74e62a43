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

package portfolio_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/common"
	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/pgxmockhelper"
	"github.com/gridbazaar/gb-api/portfolio"
)

const userID = "auth0|6172"

var (
	southwestID = uuid.MustParse("7d3b0c4e-5a1f-4b9e-9c51-2f0e8a6b1c01")
	pipelineID  = uuid.MustParse("7d3b0c4e-5a1f-4b9e-9c51-2f0e8a6b1c02")
)

var _ = Describe("Portfolio", func() {
	var (
		dbPool pgxmock.PgxConnIface
		ctx    context.Context
		err    error
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
	})

	Describe("when loading portfolios", func() {
		It("returns every portfolio for the user", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv")

			portfolios, err := portfolio.LoadPortfolios(ctx, userID)
			Expect(err).To(BeNil())
			Expect(portfolios).To(HaveLen(2))

			Expect(portfolios[0].ID).To(Equal(southwestID))
			Expect(portfolios[0].UserID).To(Equal(userID))
			Expect(portfolios[0].Kind).To(Equal(portfolio.InvestmentPortfolio))
			Expect(portfolios[0].RiskTolerance).To(Equal(portfolio.Moderate))
			Expect(portfolios[0].TargetAllocation).To(Equal(portfolio.Allocation{"Solar": 30, "Wind": 25, "Storage": 20, "Grid": 15, "Other": 10}))

			Expect(portfolios[1].Kind).To(Equal(portfolio.DevelopmentPortfolio))
			Expect(portfolios[1].TargetAllocation).To(BeEmpty())
		})

		It("loads a single portfolio by id", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", pipelineID)

			p, err := portfolio.LoadPortfolio(ctx, userID, pipelineID)
			Expect(err).To(BeNil())
			Expect(p.Name).To(Equal("Storage Pipeline"))
		})

		It("reports a missing portfolio", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("SELECT id, name, description").WillReturnRows(
				pgxmock.NewRows([]string{"id", "name", "description", "portfolio_type", "risk_tolerance", "target_allocation", "created", "lastchanged"}))
			dbPool.ExpectCommit()

			_, err := portfolio.LoadPortfolio(ctx, userID, uuid.New())
			Expect(err).To(MatchError(portfolio.ErrPortfolioNotFound))
		})

		It("requires a user", func() {
			_, err := portfolio.LoadPortfolios(ctx, "")
			Expect(err).To(MatchError(portfolio.ErrEmptyUserID))
		})

		It("rolls back when the query fails", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("SELECT id, name, description").WillReturnError(errors.New("connection reset"))
			dbPool.ExpectRollback()

			_, err := portfolio.LoadPortfolios(ctx, userID)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("when saving a portfolio", func() {
		It("upserts the portfolio", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO portfolios").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			p := portfolio.New(userID, "Texas Storage")
			p.TargetAllocation = portfolio.Allocation{"Storage": 100}
			Expect(p.Save(ctx, userID)).To(Succeed())
			Expect(p.LastChanged).To(BeTemporally("~", time.Now(), time.Second))
		})

		It("writes queued activity in the same transaction", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO portfolios").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO activity").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			p := portfolio.New(userID, "Texas Storage")
			p.AddActivity(time.Now(), "created portfolio Texas Storage", []string{"portfolio"})
			Expect(p.Save(ctx, userID)).To(Succeed())
		})

		It("rolls back when the insert fails", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO portfolios").WillReturnError(errors.New("violates check constraint"))
			dbPool.ExpectRollback()

			p := portfolio.New(userID, "Texas Storage")
			Expect(p.Save(ctx, userID)).NotTo(Succeed())
		})
	})

	Describe("when deleting a portfolio", func() {
		It("removes items and then the portfolio", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("DELETE FROM portfolio_items").WillReturnResult(pgxmock.NewResult("DELETE", 3))
			dbPool.ExpectExec("DELETE FROM portfolios").WillReturnResult(pgxmock.NewResult("DELETE", 1))
			dbPool.ExpectCommit()

			Expect(portfolio.DeletePortfolio(ctx, userID, southwestID)).To(Succeed())
		})

		It("reports a missing portfolio", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("DELETE FROM portfolio_items").WillReturnResult(pgxmock.NewResult("DELETE", 0))
			dbPool.ExpectExec("DELETE FROM portfolios").WillReturnResult(pgxmock.NewResult("DELETE", 0))
			dbPool.ExpectRollback()

			Expect(portfolio.DeletePortfolio(ctx, userID, uuid.New())).To(MatchError(portfolio.ErrPortfolioNotFound))
		})
	})

	Describe("when loading items", func() {
		It("reads every column", func() {
			pgxmockhelper.MockItemsQuery(dbPool, "../testdata/items.csv", southwestID)

			items, err := portfolio.LoadItems(ctx, userID, southwestID)
			Expect(err).To(BeNil())
			Expect(items).To(HaveLen(3))

			Expect(items[0].Kind).To(Equal(portfolio.InvestmentItem))
			Expect(items[0].Status).To(Equal(portfolio.StatusActive))
			Expect(*items[0].AcquisitionPrice).To(Equal(100000.0))
			Expect(*items[0].CurrentValue).To(Equal(150000.0))
			Expect(items[0].AcquisitionDate.Year()).To(Equal(2021))
			Expect(items[0].Metadata.Sector).To(Equal("Solar"))
			Expect(items[0].Metadata.RiskLevel).To(Equal(portfolio.RiskModerate))
			Expect(items[0].Metadata.Location).To(Equal("Maricopa County, AZ"))
			Expect(items[0].ListingID).To(BeNil())

			Expect(items[2].Status).To(Equal(portfolio.StatusSold))
		})

		It("leaves missing values empty", func() {
			pgxmockhelper.MockItemsQuery(dbPool, "../testdata/items.csv", pipelineID)

			items, err := portfolio.LoadItems(ctx, userID, pipelineID)
			Expect(err).To(BeNil())
			Expect(items).To(HaveLen(2))
			Expect(items[0].AcquisitionPrice).To(BeNil())
			Expect(items[0].AcquisitionDate).To(BeNil())
			Expect(items[0].ListingID).NotTo(BeNil())
			Expect(items[0].Sector()).To(Equal(portfolio.UnclassifiedSector))
			Expect(items[1].Metadata.Notes).To(Equal("interconnect queue position 212"))
		})

		It("analyzes what it loads", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", southwestID)
			pgxmockhelper.MockItemsQuery(dbPool, "../testdata/items.csv", southwestID)

			p, err := portfolio.LoadPortfolio(ctx, userID, southwestID)
			Expect(err).To(BeNil())
			items, err := portfolio.LoadItems(ctx, userID, southwestID)
			Expect(err).To(BeNil())

			analysis := p.Analyze(ctx, items)
			Expect(analysis.Valuation.TotalAcquisitionValue).To(Equal(300000.0))
			Expect(analysis.Valuation.TotalCurrentValue).To(Equal(330000.0))
			Expect(analysis.ItemCount).To(Equal(3))
			Expect(analysis.ActiveCount).To(Equal(2))
			Expect(analysis.BalanceScore).To(Equal(0.0))
		})

		It("reports a missing item", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("SELECT id, portfolio_id").WillReturnRows(
				pgxmockhelper.NewCSVRows("../testdata/items.csv", pgxmockhelper.ItemTypes).Where("portfolio_id", uuid.New()).Rows())
			dbPool.ExpectCommit()

			_, err := portfolio.LoadItem(ctx, userID, southwestID, uuid.New())
			Expect(err).To(MatchError(portfolio.ErrItemNotFound))
		})
	})

	Describe("when saving items", func() {
		var item *portfolio.Item

		BeforeEach(func() {
			item = portfolio.NewItem(southwestID, portfolio.InvestmentItem)
			item.AcquisitionPrice = ptr(1200000)
			item.CurrentValue = ptr(1350000)
			item.Metadata.Sector = "Storage"
		})

		It("validates before touching the database", func() {
			item.CurrentValue = ptr(-1)
			Expect(item.Save(ctx, userID)).To(MatchError(portfolio.ErrNegativeValue))

			item.CurrentValue = ptr(1)
			item.Status = "retired"
			Expect(item.Save(ctx, userID)).To(MatchError(portfolio.ErrInvalidStatus))
		})

		It("upserts the item", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO portfolio_items").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			Expect(item.Save(ctx, userID)).To(Succeed())
		})

		It("refuses to move an item between portfolios", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO portfolio_items").WillReturnResult(pgxmock.NewResult("INSERT", 0))
			dbPool.ExpectRollback()

			Expect(item.Save(ctx, userID)).To(MatchError(portfolio.ErrItemNotFound))
		})

		It("deletes an item", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("DELETE FROM portfolio_items").WillReturnResult(pgxmock.NewResult("DELETE", 1))
			dbPool.ExpectCommit()

			Expect(portfolio.DeleteItem(ctx, userID, southwestID, item.ID)).To(Succeed())
		})

		It("reports deleting a missing item", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("DELETE FROM portfolio_items").WillReturnResult(pgxmock.NewResult("DELETE", 0))
			dbPool.ExpectRollback()

			Expect(portfolio.DeleteItem(ctx, userID, southwestID, item.ID)).To(MatchError(portfolio.ErrItemNotFound))
		})
	})

	Describe("when validating", func() {
		It("accepts a well formed portfolio", func() {
			p := portfolio.New(userID, "Grid Assets")
			Expect(p.Validate()).To(Succeed())
		})

		It("rejects bad enumerations and targets", func() {
			p := portfolio.New(userID, " ")
			Expect(p.Validate()).To(MatchError(portfolio.ErrEmptyName))

			p = portfolio.New(userID, "Grid Assets")
			p.Kind = "hedge"
			Expect(p.Validate()).To(MatchError(portfolio.ErrInvalidPortfolioType))

			p = portfolio.New(userID, "Grid Assets")
			p.RiskTolerance = "reckless"
			Expect(p.Validate()).To(MatchError(portfolio.ErrInvalidRiskTolerance))

			p = portfolio.New(userID, "Grid Assets")
			p.TargetAllocation = portfolio.Allocation{"Solar": -5}
			Expect(p.Validate()).To(MatchError(portfolio.ErrNegativeTarget))
		})

		It("rejects a bad item risk level", func() {
			item := portfolio.NewItem(southwestID, portfolio.ResearchItem)
			item.Metadata.RiskLevel = "extreme"
			Expect(item.Validate()).To(MatchError(portfolio.ErrInvalidRiskLevel))
		})
	})
	Describe("when revaluing", func() {
		It("recomputes the analysis and records the score", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", southwestID)
			pgxmockhelper.MockItemsQuery(dbPool, "../testdata/items.csv", southwestID)
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO activity").WithArgs(userID, southwestID, pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"revalue"}).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			analysis, err := portfolio.Revalue(ctx, userID, southwestID)
			Expect(err).To(BeNil())
			Expect(analysis.PortfolioID).To(Equal(southwestID.String()))
			Expect(analysis.Valuation.TotalCurrentValue).To(Equal(330000.0))
		})

		It("stops when the portfolio does not exist", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", uuid.Nil)

			_, err := portfolio.Revalue(ctx, userID, uuid.New())
			Expect(err).To(MatchError(portfolio.ErrPortfolioNotFound))
		})
	})

	Describe("when reading a cached analysis", func() {
		var (
			p     *portfolio.Portfolio
			items []*portfolio.Item
			logs  *bytes.Buffer
			saved zerolog.Logger
		)

		BeforeEach(func() {
			p = portfolio.New(userID, "Cache Check")
			p.TargetAllocation = portfolio.Allocation{"Solar": 100}
			item := portfolio.NewItem(p.ID, portfolio.InvestmentItem)
			item.CurrentValue = ptr(1000)
			item.Metadata.Sector = "Solar"
			items = []*portfolio.Item{item}

			logs = &bytes.Buffer{}
			saved = log.Logger
			log.Logger = zerolog.New(logs)
		})

		AfterEach(func() {
			log.Logger = saved
		})

		It("recomputes and reports why when the stored value is corrupt", func() {
			key := portfolio.AnalysisKey(p, items)
			Expect(common.CacheSet(ctx, key, []byte("{not json"))).To(Succeed())

			analysis, err := p.CachedAnalysis(ctx, items)
			Expect(err).To(BeNil())
			Expect(analysis.Valuation.TotalCurrentValue).To(Equal(1000.0))
			Expect(analysis.BalanceScore).To(Equal(100.0))

			Expect(logs.String()).To(ContainSubstring("could not decode cached analysis"))
			Expect(logs.String()).To(ContainSubstring(`"error":"`))
		})
	})
})
