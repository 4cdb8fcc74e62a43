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

package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gridbazaar/gb-api/handler"
)

// SetupRoutes registers every /v1 endpoint. All routes except ping run
// behind auth.
func SetupRoutes(app *fiber.App, auth fiber.Handler) {
	api := app.Group("/v1")
	api.Get("/", handler.Ping)

	api.Get("/announcements", auth, handler.GetAnnouncements)
	api.Get("/activity", auth, handler.GetAllActivity)
	api.Get("/profile", auth, handler.GetProfile)

	// Listing
	listing := api.Group("/listing", auth)
	listing.Get("/", handler.ListListings)
	listing.Get("/:id", handler.GetListing)
	listing.Get("/:id/score/:kind", handler.ScoreListing)

	// Portfolio
	portfolio := api.Group("/portfolio", auth)
	portfolio.Get("/", handler.ListPortfolios)
	portfolio.Post("/", handler.CreatePortfolio)
	portfolio.Get("/:id", handler.GetPortfolio)
	portfolio.Patch("/:id", handler.UpdatePortfolio)
	portfolio.Delete("/:id", handler.DeletePortfolio)
	portfolio.Get("/:id/items", handler.ListItems)
	portfolio.Post("/:id/items", handler.CreateItem)
	portfolio.Patch("/:id/items/:itemId", handler.UpdateItem)
	portfolio.Delete("/:id/items/:itemId", handler.DeleteItem)
	portfolio.Get("/:id/analysis", handler.GetAnalysis)
	portfolio.Post("/:id/revalue", handler.RevaluePortfolio)
	portfolio.Get("/:id/activity", handler.GetPortfolioActivity)
}
