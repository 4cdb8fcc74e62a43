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

package middleware

import (
	"encoding/base64"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/jdfergason/jwt/v2"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/rs/zerolog/log"

	"github.com/gridbazaar/gb-api/common"
)

// APIKeyHeader carries an API key when it is not passed as a query parameter
const APIKeyHeader = "X-Gb-Api"

type apiToken struct {
	UserID string `json:"sub"`
}

// NewAPIKey issues an API key that authenticates as userID
func NewAPIKey(userID string) (string, error) {
	plain, err := json.Marshal(apiToken{UserID: userID})
	if err != nil {
		return "", err
	}
	cipher, err := common.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(cipher), nil
}

func authError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg, "data": nil})
}

// GBAuth authenticates a request with either an API key or a bearer JWT
// signed by the auth provider. The subject is stored in c.Locals("userID").
func GBAuth(jwks *jwk.AutoRefresh, jwksURL string) fiber.Handler {
	jwtMiddleware := jwtware.New(jwtware.Config{
		Jwks:         jwks,
		JwksUrl:      jwksURL,
		ErrorHandler: jwtError,
		SuccessHandler: func(c *fiber.Ctx) error {
			return nil
		},
	})

	apiKey := func(c *fiber.Ctx, token string) error {
		tokenBytes, err := base64.URLEncoding.DecodeString(token)
		if err != nil {
			log.Warn().Stack().Err(err).Msg("could not base64 decode apiKey")
			return authError(c, fiber.StatusBadRequest, "could not base64 decode apikey")
		}

		jsonBytes, err := common.Decrypt(tokenBytes)
		if err != nil {
			log.Warn().Stack().Err(err).Msg("could not unencrypt apiKey")
			return authError(c, fiber.StatusUnauthorized, "invalid apikey")
		}

		var v apiToken
		if err := json.Unmarshal(jsonBytes, &v); err != nil || v.UserID == "" {
			log.Warn().Stack().Err(err).Msg("could not unmarshal json from apikey - maybe apikey is corrupt?")
			return authError(c, fiber.StatusUnauthorized, "invalid apikey")
		}
		c.Locals("userID", v.UserID)
		return c.Next()
	}

	return func(c *fiber.Ctx) error {
		if token := c.Query("apikey"); token != "" {
			return apiKey(c, token)
		}

		if token := c.Get(APIKeyHeader); token != "" {
			return apiKey(c, token)
		}

		if err := jwtMiddleware(c); err != nil {
			return err
		}

		// a failed verification has already written its response
		jwtToken, ok := c.Locals("user").(jwt.Token)
		if !ok {
			if c.Response().StatusCode() >= fiber.StatusBadRequest {
				return nil
			}
			return authError(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
		}
		if jwtToken.Subject() == "" {
			log.Warn().Msg("jwt has no subject")
			return authError(c, fiber.StatusUnauthorized, "JWT has no subject")
		}
		c.Locals("userID", jwtToken.Subject())
		return c.Next()
	}
}

func jwtError(c *fiber.Ctx, err error) error {
	log.Warn().Stack().Err(err).Msg("jwt authentication error")

	if err.Error() == "Missing or malformed JWT" {
		return authError(c, fiber.StatusBadRequest, "Missing or malformed JWT")
	}
	return authError(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
}
