// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the mediad daemon configuration.
//
// Precedence is ENV (MEDIAD_*) > YAML file > defaults. The file is decoded
// strictly: unknown keys and trailing documents are rejected.
package config
