// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

// Package migrations embeds the goose SQL migrations for the Postgres store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
