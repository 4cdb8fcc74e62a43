//go:build mage

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

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	modulePath = "github.com/gridbazaar/gb-api"
	binaryName = "gbapi"
	coverFile  = "coverage.out"
)

var ldflags = fmt.Sprintf("-X %[1]s/common.commitHash=$COMMIT_HASH -X %[1]s/common.buildDate=$BUILD_DATE", modulePath)

var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// Build compiles gbapi with the version stamped in
func Build() error {
	fmt.Println("Building...")
	return sh.RunWith(flagEnv(), goexe, args("build", "-o", binaryName, "-ldflags", ldflags, buildFlags(), "-tags", buildTags(), ".")...)
}

// Install puts gbapi in $GOPATH/bin
func Install() error {
	return sh.RunWith(flagEnv(), goexe, args("install", "-ldflags", ldflags, buildFlags(), "-tags", buildTags(), ".")...)
}

func Clean() error {
	fmt.Println("Cleaning...")
	for _, f := range []string{binaryName, coverFile} {
		if err := sh.Rm(f); err != nil {
			return err
		}
	}
	return nil
}

// Check runs formatting, vet and the race enabled tests
func Check() {
	mg.SerialDeps(Fmt, Vet, TestRace)
}

func Test() error {
	fmt.Println("Go Test")
	return sh.RunV(goexe, args("test", "./...", buildFlags(), "-tags", buildTags())...)
}

func TestRace() error {
	fmt.Println("Go Test Race")
	return sh.RunV(goexe, args("test", "-race", "./...", buildFlags(), "-tags", buildTags())...)
}

// Ginkgo runs the suites with randomized ordering
func Ginkgo() error {
	fmt.Println("Ginkgo")
	return sh.RunV("ginkgo", "-r", "--randomize-all", "--race", "--tags", buildTags())
}

// Cover writes a combined coverage profile and opens the html report
func Cover() error {
	if err := sh.RunV(goexe, "test", "-coverprofile="+coverFile, "-covermode=count", "./..."); err != nil {
		return err
	}
	return sh.Run(goexe, "tool", "cover", "-html="+coverFile)
}

// Fmt fails when any file needs gofmt
func Fmt() error {
	fmt.Println("Go Format")
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}

	var unformatted []string
	for _, f := range strings.Split(out, "\n") {
		if f != "" && !strings.HasPrefix(f, "_") {
			unformatted = append(unformatted, f)
		}
	}
	if len(unformatted) > 0 {
		return fmt.Errorf("improperly formatted go files:\n%s", strings.Join(unformatted, "\n"))
	}
	return nil
}

func Lint() error {
	fmt.Println("Go Lint")
	return sh.RunV("golangci-lint", "run", "--build-tags", buildTags(), "./...")
}

func Vet() error {
	fmt.Println("Go Vet")
	if err := sh.Run(goexe, "vet", "-tags", buildTags(), "./..."); err != nil {
		return fmt.Errorf("error running go vet: %w", err)
	}
	return nil
}

// Serve builds the binary and starts the API server
func Serve() error {
	mg.Deps(Build)
	return sh.RunV("./"+binaryName, "serve")
}

func buildFlags() []string {
	if runtime.GOOS == "windows" {
		return []string{"-buildmode", "exe"}
	}
	return nil
}

// jwx decodes with goccy/go-json under this tag
func buildTags() string {
	return "jwx_goccy"
}

func flagEnv() map[string]string {
	hash, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return map[string]string{
		"COMMIT_HASH": hash,
		"BUILD_DATE":  time.Now().Format("2006-01-02T15:04:05Z0700"),
	}
}

// args flattens strings and string slices, dropping empty values
func args(v ...interface{}) []string {
	var out []string
	for _, arg := range v {
		switch v := arg.(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case []string:
			out = append(out, v...)
		default:
			panic("invalid type")
		}
	}
	return out
}
