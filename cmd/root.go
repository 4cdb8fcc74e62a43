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
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gridbazaar/gb-api/common"
)

var Profile bool
var Trace bool

// bindFlag ties a config key to an environment variable and a persistent flag
func bindFlag(flags *pflag.FlagSet, key, env, flag string) {
	if env != "" {
		if err := viper.BindEnv(key, env); err != nil {
			log.Panic().Err(err).Str("Key", key).Msg("could not bind environment variable")
		}
	}
	if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Key", key).Msg("could not bind flag")
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	// GB secret key
	flags.String("secret-key", "", "Secret encryption key (hex encoded, 32 bytes)")
	bindFlag(flags, "secret_key", "GB_SECRET", "secret-key")

	// AUTH0
	flags.String("auth0-secret", "", "Auth0 secret")
	bindFlag(flags, "auth0.secret", "AUTH0_SECRET", "auth0-secret")

	flags.String("auth0-client-id", "", "Auth0 client id")
	bindFlag(flags, "auth0.client_id", "AUTH0_CLIENT_ID", "auth0-client-id")

	flags.String("auth0-domain", "", "Auth0 domain")
	bindFlag(flags, "auth0.domain", "AUTH0_DOMAIN", "auth0-domain")

	// Database
	flags.String("database-url", "", "PostgreSQL connection string")
	bindFlag(flags, "database.url", "DATABASE_URL", "database-url")

	// Logging configuration
	flags.String("log-level", "warning", "Logging level")
	bindFlag(flags, "log.level", "GB_LOG_LEVEL", "log-level")

	flags.Bool("log-report-caller", false, "Log function name that called log statement")
	bindFlag(flags, "log.report_caller", "GB_LOG_REPORT_CALLER", "log-report-caller")

	flags.String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	bindFlag(flags, "log.output", "GB_LOG_OUTPUT", "log-output")

	flags.Bool("log-pretty", false, "Write human readable logs instead of JSON")
	bindFlag(flags, "log.pretty", "GB_LOG_PRETTY", "log-pretty")

	flags.String("log-loki-url", "", "ship logs to this Loki server")
	bindFlag(flags, "log.loki_url", "GB_LOKI_URL", "log-loki-url")

	// Cache
	flags.Bool("cache-redis", false, "Share cached results through redis")
	bindFlag(flags, "cache.redis", "GB_CACHE_REDIS", "cache-redis")

	flags.String("redis-url", "redis://localhost:6379/0", "Redis connection string")
	bindFlag(flags, "cache.redis_url", "REDIS_URL", "redis-url")

	flags.Int("cache-local-size", 1024, "Number of entries held in the in-process cache")
	bindFlag(flags, "cache.local_size", "GB_CACHE_LOCAL_SIZE", "cache-local-size")

	flags.Int("cache-ttl", 3600, "Seconds a cached result stays in redis")
	bindFlag(flags, "cache.ttl", "GB_CACHE_TTL", "cache-ttl")

	// NATS
	flags.String("nats-server", "nats://localhost:4222", "NATS server url")
	bindFlag(flags, "nats.server", "NATS_SERVER", "nats-server")

	flags.String("nats-credentials", "", "NATS user credentials file")
	bindFlag(flags, "nats.credentials", "NATS_CREDENTIALS", "nats-credentials")

	flags.String("nats-revalue-subject", "gridbazaar.revalue", "JetStream subject revalue requests are published on")
	bindFlag(flags, "nats.revalue_subject", "", "nats-revalue-subject")

	flags.String("nats-revalue-consumer", "gbapi-revalue", "Durable consumer revalue workers pull from")
	bindFlag(flags, "nats.revalue_consumer", "", "nats-revalue-consumer")

	// Tracing
	flags.String("otlp-endpoint", "", "OpenTelemetry collector endpoint; tracing is disabled when empty")
	bindFlag(flags, "otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "otlp-endpoint")

	flags.Bool("otlp-http", false, "Export traces over HTTP instead of gRPC")
	bindFlag(flags, "otlp.http", "", "otlp-http")

	flags.BoolVar(&Profile, "cpu-profile", false, "Run pprof and save in profile.out")
	flags.BoolVar(&Trace, "trace", false, "Trace program execution and save in trace.out")
}

var rootCmd = &cobra.Command{
	Use:     "gbapi",
	Version: common.CurrentVersion.String(),
	Short:   "GridBazaar marketplace API",
	Long:    `Marketplace and portfolio analytics backend for power sites, hosting capacity and energy equipment.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		common.CloseLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		common.CloseLogging()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
