// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package main

import (
	"fmt"
	"os"

	"github.com/passkeyd/passkeyd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
