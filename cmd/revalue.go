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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gridbazaar/gb-api/common"
	"github.com/gridbazaar/gb-api/database"
	"github.com/gridbazaar/gb-api/messenger"
	"github.com/gridbazaar/gb-api/portfolio"
)

var ErrFetchFailed = errors.New("giving up fetching revalue requests")

var revalueMax int
var revalueIdle time.Duration

const (
	maxFetchFailures = 5
	fetchBackoff     = 2 * time.Second
)

func init() {
	revalueCmd.Flags().IntVarP(&revalueMax, "max", "n", 0, "stop after processing this many requests (0 runs until the queue is empty)")
	revalueCmd.Flags().DurationVar(&revalueIdle, "wait", 0, "keep polling this long after the queue empties")

	rootCmd.AddCommand(revalueCmd)
}

// settler is the acknowledgement side of a JetStream message
type settler interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

type revalueWorker struct {
	fetch       func() (settler, *messenger.RevalueRequest, error)
	revalue     func(ctx context.Context, userID string, portfolioID uuid.UUID) (*portfolio.Analysis, error)
	max         int
	idle        time.Duration
	backoff     time.Duration
	maxFailures int
}

func fetchFromQueue() (settler, *messenger.RevalueRequest, error) {
	msg, req, err := messenger.FetchRevalueRequest()
	if msg == nil {
		return nil, req, err
	}
	return msg, req, err
}

// permanentRevalueError reports failures that redelivery cannot fix, such as
// a portfolio deleted after the request was queued
func permanentRevalueError(err error) bool {
	return errors.Is(err, portfolio.ErrPortfolioNotFound) ||
		errors.Is(err, portfolio.ErrEmptyUserID) ||
		errors.Is(err, database.ErrEmptyUserID)
}

// run processes requests until the queue stays empty for w.idle, w.max
// requests succeed, or fetching fails w.maxFailures times in a row
func (w *revalueWorker) run(ctx context.Context) (int, error) {
	processed := 0
	failures := 0
	idleSince := time.Now()

	for w.max == 0 || processed < w.max {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		msg, req, err := w.fetch()
		switch {
		case errors.Is(err, messenger.ErrInvalidRequest):
			// already terminated by the fetch
			continue
		case err != nil:
			failures++
			log.Error().Err(err).Int("Failures", failures).Msg("could not fetch revalue request")
			if failures >= w.maxFailures {
				return processed, fmt.Errorf("%w: %s", ErrFetchFailed, err)
			}
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			case <-time.After(w.backoff * time.Duration(failures)):
			}
			continue
		}
		failures = 0

		if msg == nil {
			if time.Since(idleSince) >= w.idle {
				break
			}
			continue
		}
		idleSince = time.Now()

		if w.handle(ctx, msg, req) {
			processed++
		}
	}

	return processed, nil
}

// handle revalues one request and settles its message. It reports whether the
// revalue succeeded.
func (w *revalueWorker) handle(ctx context.Context, msg settler, req *messenger.RevalueRequest) bool {
	subLog := log.With().Str("UserID", req.UserID).Str("PortfolioID", req.PortfolioID.String()).Logger()

	analysis, err := w.revalue(ctx, req.UserID, req.PortfolioID)
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			subLog.Warn().Err(err).Msg("could not ack message")
		}
		subLog.Info().Float64("BalanceScore", analysis.BalanceScore).Time("Requested", req.RequestTime).Msg("revalued portfolio")
		return true
	case permanentRevalueError(err):
		subLog.Warn().Err(err).Msg("dropping revalue request that cannot succeed")
		if err := msg.Term(); err != nil {
			subLog.Warn().Err(err).Msg("could not terminate message")
		}
	default:
		subLog.Error().Err(err).Msg("revalue failed; requesting redelivery")
		if err := msg.Nak(); err != nil {
			subLog.Warn().Err(err).Msg("could not nak message")
		}
	}
	return false
}

var revalueCmd = &cobra.Command{
	Use:   "revalue",
	Short: "Process queued portfolio revalue requests",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := common.SetupCache(); err != nil {
			log.Fatal().Err(err).Msg("could not setup cache")
		}

		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		if err := messenger.Initialize(); err != nil {
			log.Fatal().Err(err).Msg("could not connect to NATS")
		}
		defer messenger.Close()

		worker := &revalueWorker{
			fetch:       fetchFromQueue,
			revalue:     portfolio.Revalue,
			max:         revalueMax,
			idle:        revalueIdle,
			backoff:     fetchBackoff,
			maxFailures: maxFetchFailures,
		}

		processed, err := worker.run(ctx)
		if err != nil {
			log.Error().Err(err).Int("NumProcessed", processed).Msg("revalue worker stopped")
			return
		}
		log.Info().Int("NumProcessed", processed).Msg("revalue worker finished")
	},
}
