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

package handler_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/pgxmockhelper"
	"github.com/gridbazaar/gb-api/portfolio"
	"github.com/gridbazaar/gb-api/router"
	"github.com/gridbazaar/gb-api/scoring"
)

const userID = "auth0|6172"

var (
	southwestID = uuid.MustParse("7d3b0c4e-5a1f-4b9e-9c51-2f0e8a6b1c01")
	siteID      = uuid.MustParse("5e2f4c1a-9b8d-4e7f-a6c5-d4e3f2a1b001")
)

func fakeAuth(c *fiber.Ctx) error {
	c.Locals("userID", userID)
	return c.Next()
}

var _ = Describe("Handler", func() {
	var (
		app    *fiber.App
		dbPool pgxmock.PgxConnIface
		err    error
	)

	BeforeEach(func() {
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)

		app = fiber.New()
		router.SetupRoutes(app, fakeAuth)
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
	})

	do := func(method, target, body string, header map[string]string) (*http.Response, []byte) {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, reader)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		Expect(err).To(BeNil())
		data, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		return resp, data
	}

	It("answers ping without auth", func() {
		app = fiber.New()
		router.SetupRoutes(app, func(c *fiber.Ctx) error { return fiber.ErrUnauthorized })
		resp, body := do("GET", "/v1/", "", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(ContainSubstring("API is alive"))

		resp, _ = do("GET", "/v1/portfolio", "", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
	})

	Describe("without a user identity", func() {
		BeforeEach(func() {
			app = fiber.New()
			router.SetupRoutes(app, func(c *fiber.Ctx) error {
				c.Locals("userID", "")
				return c.Next()
			})
		})

		It("reports portfolio requests as unauthenticated", func() {
			resp, body := do("GET", "/v1/portfolio", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(string(body)).To(ContainSubstring("unauthenticated"))
		})

		It("reports listing requests as unauthenticated", func() {
			resp, body := do("GET", "/v1/listing", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(string(body)).To(ContainSubstring("unauthenticated"))
		})
	})

	Describe("portfolio endpoints", func() {
		It("returns a portfolio", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", southwestID)

			resp, body := do("GET", "/v1/portfolio/"+southwestID.String(), "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			p := portfolio.Portfolio{}
			Expect(json.Unmarshal(body, &p)).To(Succeed())
			Expect(p.Name).To(Equal("Southwest Renewables"))
			Expect(p.TargetAllocation).To(HaveKeyWithValue("Solar", 30.0))
		})

		It("rejects a malformed id", func() {
			resp, body := do("GET", "/v1/portfolio/not-a-uuid", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring(`"status":"error"`))
		})

		It("reports a missing portfolio as not found", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", uuid.New())

			resp, _ := do("GET", "/v1/portfolio/"+uuid.New().String(), "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("reports an unavailable database", func() {
			dbPool.ExpectBegin().WillReturnError(errors.New("connection refused"))

			resp, body := do("GET", "/v1/portfolio", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
			Expect(string(body)).To(ContainSubstring("service unavailable"))
		})

		It("validates new portfolios before touching the database", func() {
			resp, body := do("POST", "/v1/portfolio", `{"name":"Gulf Coast","portfolioType":"hedge"}`, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring(portfolio.ErrInvalidPortfolioType.Error()))

			resp, _ = do("POST", "/v1/portfolio", `{"name":"Gulf Coast","targetAllocation":{"Solar":-5}}`, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			resp, _ = do("POST", "/v1/portfolio", `{"name":`, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("creates a portfolio and records the activity", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("INSERT INTO portfolios").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO activity").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			resp, body := do("POST", "/v1/portfolio", `{"name":"Gulf Coast","riskTolerance":"conservative","targetAllocation":{"Solar":60,"Storage":40}}`, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			p := portfolio.Portfolio{}
			Expect(json.Unmarshal(body, &p)).To(Succeed())
			Expect(p.Name).To(Equal("Gulf Coast"))
			Expect(p.Kind).To(Equal(portfolio.InvestmentPortfolio))
			Expect(p.RiskTolerance).To(Equal(portfolio.Conservative))
			Expect(p.ID).NotTo(Equal(uuid.Nil))
		})

		It("deletes a portfolio", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("DELETE FROM portfolio_items").WillReturnResult(pgxmock.NewResult("DELETE", 3))
			dbPool.ExpectExec("DELETE FROM portfolios").WillReturnResult(pgxmock.NewResult("DELETE", 1))
			dbPool.ExpectCommit()

			resp, body := do("DELETE", "/v1/portfolio/"+southwestID.String(), "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring("success"))
		})
	})

	Describe("item endpoints", func() {
		It("lists the items of a portfolio", func() {
			pgxmockhelper.MockItemsQuery(dbPool, "../testdata/items.csv", southwestID)

			resp, body := do("GET", "/v1/portfolio/"+southwestID.String()+"/items", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			items := []*portfolio.Item{}
			Expect(json.Unmarshal(body, &items)).To(Succeed())
			Expect(items).To(HaveLen(3))
		})

		It("rejects items with negative values", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", southwestID)

			resp, body := do("POST", "/v1/portfolio/"+southwestID.String()+"/items", `{"currentValue":-10,"metadata":{"sector":"Solar"}}`, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring(portfolio.ErrNegativeValue.Error()))
		})

		It("reports a missing item", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectExec("DELETE FROM portfolio_items").WillReturnResult(pgxmock.NewResult("DELETE", 0))
			dbPool.ExpectRollback()

			resp, _ := do("DELETE", "/v1/portfolio/"+southwestID.String()+"/items/"+uuid.New().String(), "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("analysis endpoints", func() {
		It("analyzes a portfolio", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", southwestID)
			pgxmockhelper.MockItemsQuery(dbPool, "../testdata/items.csv", southwestID)

			resp, body := do("GET", "/v1/portfolio/"+southwestID.String()+"/analysis", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			analysis := portfolio.Analysis{}
			Expect(json.Unmarshal(body, &analysis)).To(Succeed())
			Expect(analysis.Valuation.TotalCurrentValue).To(Equal(330000.0))
			Expect(analysis.Valuation.TotalAcquisitionValue).To(Equal(300000.0))
			Expect(analysis.ActiveCount).To(Equal(2))
			Expect(analysis.Recommendations).To(HaveLen(5))
			Expect(analysis.BalanceScore).To(BeNumerically(">=", 0))
		})

		It("needs a message broker to revalue", func() {
			pgxmockhelper.MockPortfolioQuery(dbPool, "../testdata/portfolios.csv", southwestID)

			resp, _ := do("POST", "/v1/portfolio/"+southwestID.String()+"/revalue", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Describe("listing endpoints", func() {
		It("pages through the catalog", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery(`select "id", "title"`).WillReturnRows(
				pgxmockhelper.NewCSVRows("../testdata/listings.csv", pgxmockhelper.ListingTypes).Rows())
			dbPool.ExpectCommit()

			resp, body := do("GET", "/v1/listing?kind=power_site", "", map[string]string{"Range": "items=0-9"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Range")).To(Equal("items 0-2/3"))
			Expect(string(body)).To(ContainSubstring("Pinal County"))
		})

		It("names only the total for an empty page", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery(`select "id", "title"`).WillReturnRows(
				pgxmockhelper.NewCSVRows("../testdata/listings.csv", pgxmockhelper.ListingTypes).Where("id", uuid.New()).Rows())
			dbPool.ExpectCommit()

			resp, body := do("GET", "/v1/listing?kind=equipment", "", map[string]string{"Range": "items=50-74"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Range")).To(Equal("items */50"))
			Expect(string(body)).To(Equal("[]"))
		})

		It("refuses an oversized range", func() {
			resp, _ := do("GET", "/v1/listing", "", map[string]string{"Range": "items=0-500"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusRequestedRangeNotSatisfiable))
		})

		It("refuses an unknown filter value", func() {
			resp, _ := do("GET", "/v1/listing?kind=spaceship", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("scores a listing", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("SELECT id, title").WillReturnRows(
				pgxmockhelper.NewCSVRows("../testdata/listings.csv", pgxmockhelper.ListingTypes).Where("id", siteID).Rows())
			dbPool.ExpectCommit()

			resp, body := do("GET", "/v1/listing/"+siteID.String()+"/score/risk", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			result := scoring.Result{}
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Kind).To(Equal(scoring.Risk))
			Expect(result.SubjectID).To(Equal(siteID.String()))
			Expect(result.Model).To(Equal(scoring.MockModel))
		})

		It("rejects an unknown score kind", func() {
			resp, _ := do("GET", "/v1/listing/"+siteID.String()+"/score/astrology", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("activity endpoints", func() {
		It("returns the activity feed", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("FROM activity WHERE user_id").WithArgs(userID).WillReturnRows(
				pgxmock.NewRows([]string{"id", "portfolio_id", "event_date", "activity", "tags"}).
					AddRow("9c2e", southwestID.String(), time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC), "Created portfolio Southwest Renewables", []string{"portfolio"}))
			dbPool.ExpectCommit()

			resp, body := do("GET", "/v1/activity", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Range")).To(Equal("items 0-0/1"))
			Expect(string(body)).To(ContainSubstring("Created portfolio Southwest Renewables"))
		})

		It("returns announcements", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("FROM announcements").WillReturnRows(
				pgxmock.NewRows([]string{"id", "event_date", "expires", "announcement", "tags"}).
					AddRow("1", time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), "Hosting capacity listings are live", []string{"release"}))
			dbPool.ExpectCommit()

			resp, body := do("GET", "/v1/announcements", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring("Hosting capacity listings are live"))
		})

		It("surfaces query failures as internal errors", func() {
			pgxmockhelper.ExpectUserTrx(dbPool)
			dbPool.ExpectQuery("FROM announcements").WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
			dbPool.ExpectRollback()

			resp, body := do("GET", "/v1/announcements", "", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(string(body)).NotTo(ContainSubstring("relation"))
		})
	})
})
