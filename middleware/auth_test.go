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

package middleware_test

import (
	"context"
	"io"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/jwk"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/gridbazaar/gb-api/middleware"
)

var _ = Describe("Auth", func() {
	var (
		app    *fiber.App
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())

		viper.Set("secret_key", "6368616e676520746869732070617373776f726420746f206120736563726574")
		jwksURL := "https://gridbazaar.test/.well-known/jwks.json"
		ar := jwk.NewAutoRefresh(ctx)
		ar.Configure(jwksURL)

		app = fiber.New()
		app.Use(middleware.NewLogger())
		app.Get("/whoami", middleware.GBAuth(ar, jwksURL), func(c *fiber.Ctx) error {
			return c.SendString(c.Locals("userID").(string))
		})
	})

	AfterEach(func() {
		cancel()
	})

	body := func(req string, header map[string]string) (int, string) {
		r := httptest.NewRequest("GET", req, nil)
		for k, v := range header {
			r.Header.Set(k, v)
		}
		resp, err := app.Test(r)
		Expect(err).To(BeNil())
		data, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		return resp.StatusCode, string(data)
	}

	It("accepts an api key in the query string", func() {
		key, err := middleware.NewAPIKey("auth0|6172")
		Expect(err).To(BeNil())
		code, msg := body("/whoami?apikey="+key, nil)
		Expect(code).To(Equal(fiber.StatusOK))
		Expect(msg).To(Equal("auth0|6172"))
	})

	It("accepts an api key in the header", func() {
		key, err := middleware.NewAPIKey("auth0|6172")
		Expect(err).To(BeNil())
		code, msg := body("/whoami", map[string]string{middleware.APIKeyHeader: key})
		Expect(code).To(Equal(fiber.StatusOK))
		Expect(msg).To(Equal("auth0|6172"))
	})

	It("rejects a key that is not base64", func() {
		code, msg := body("/whoami?apikey=***", nil)
		Expect(code).To(Equal(fiber.StatusBadRequest))
		Expect(msg).To(ContainSubstring("could not base64 decode apikey"))
	})

	It("rejects a key encrypted with another secret", func() {
		key, err := middleware.NewAPIKey("auth0|6172")
		Expect(err).To(BeNil())
		viper.Set("secret_key", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
		code, msg := body("/whoami?apikey="+key, nil)
		Expect(code).To(Equal(fiber.StatusUnauthorized))
		Expect(msg).To(ContainSubstring("invalid apikey"))
	})

	It("rejects an api key without a subject", func() {
		key, err := middleware.NewAPIKey("")
		Expect(err).To(BeNil())
		code, msg := body("/whoami?apikey="+key, nil)
		Expect(code).To(Equal(fiber.StatusUnauthorized))
		Expect(msg).To(ContainSubstring("invalid apikey"))
	})

	It("requires a bearer token when no api key is given", func() {
		code, msg := body("/whoami", nil)
		Expect(code).To(Equal(fiber.StatusBadRequest))
		Expect(msg).To(ContainSubstring("Missing or malformed JWT"))
	})
})
