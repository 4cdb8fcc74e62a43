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
	"os"
	"os/signal"
	"runtime/pprof"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridbazaar/gb-api/common"
	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/jwks"
	"github.com/gridbazaar/gb-api/messenger"
	"github.com/gridbazaar/gb-api/middleware"
	"github.com/gridbazaar/gb-api/observability/opentelemetry"
	"github.com/gridbazaar/gb-api/router"
)

func init() {
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	bindFlag(serveCmd.Flags(), "server.port", "PORT", "port")

	serveCmd.Flags().String("cors-origins", "http://localhost:8080, https://www.gridbazaar.com", "Comma separated list of origins allowed to call the API")
	bindFlag(serveCmd.Flags(), "server.cors_origins", "GB_CORS_ORIGINS", "cors-origins")

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gbapi server",
	Long:  `Run HTTP server that implements the GridBazaar API`,
	Run: func(cmd *cobra.Command, args []string) {
		if Profile {
			f, err := os.Create("profile.out")
			if err != nil {
				log.Fatal().Err(err).Msg("could not create profile output file")
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				log.Fatal().Err(err).Msg("could not start CPU profile")
			}
			defer pprof.StopCPUProfile()
		}

		if Trace {
			f, err := os.Create("trace.out")
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create trace output file")
			}
			defer func() {
				if err := f.Close(); err != nil {
					log.Fatal().Err(err).Msg("failed to close trace file")
				}
			}()

			if err := trace.Start(f); err != nil {
				log.Fatal().Err(err).Msg("failed to start trace")
			}
			defer trace.Stop()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := common.SetupCache(); err != nil {
			log.Fatal().Err(err).Msg("could not setup cache")
		}

		shutdownTracing, err := opentelemetry.Setup(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not setup tracing")
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Error().Err(err).Msg("could not flush traces")
			}
		}()

		// setup database
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		if err := messenger.Initialize(); err != nil {
			log.Warn().Err(err).Msg("NATS unavailable; revalue requests will be refused")
		}
		defer messenger.Close()

		// Create new Fiber instance
		app := fiber.New(fiber.Config{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-c // block until signal is read
			log.Info().Str("Signal", sig.String()).Msg("received signal; shutting down")
			if err := app.Shutdown(); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
			}
		}()

		// Configure CORS
		corsConfig := cors.Config{
			AllowOrigins: viper.GetString("server.cors_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		}
		app.Use(cors.New(corsConfig))

		// Setup logging and tracing middleware
		app.Use(middleware.NewLogger())
		app.Use(middleware.NewTracer())

		// Configure authentication
		jwksAutoRefresh, jwksURL := jwks.SetupJWKS(ctx)

		// Setup routes
		router.SetupRoutes(app, middleware.GBAuth(jwksAutoRefresh, jwksURL))

		// report leaked transactions
		scheduler := gocron.NewScheduler(time.UTC)
		if _, err := scheduler.Every(1).Hours().Do(database.LogOpenTransactions); err != nil {
			log.Error().Err(err).Msg("could not schedule transaction report")
		}
		scheduler.StartAsync()
		defer scheduler.Stop()

		log.Info().Str("Version", common.CurrentVersion.String()).Str("Port", viper.GetString("server.port")).Msg("starting server")
		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	},
}
