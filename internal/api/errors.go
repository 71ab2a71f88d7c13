// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package api

import (
	"errors"
	"net/http"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/logging"
)

// writeEngineError maps engine sentinel errors onto HTTP responses. Unknown
// errors log at error level and surface as 500 without internal detail.
func writeEngineError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, affinity.ErrInvalidTopic):
		rw.Error(http.StatusBadRequest, ErrCodeInvalidTopic, err.Error())
	case errors.Is(err, affinity.ErrInvalidValue):
		rw.Error(http.StatusBadRequest, ErrCodeOutOfRange, err.Error())
	case errors.Is(err, affinity.ErrUserAffinityNotFound),
		errors.Is(err, affinity.ErrVideoNotFound),
		errors.Is(err, affinity.ErrClipNotFound),
		errors.Is(err, affinity.ErrNotFound):
		rw.NotFound(err.Error())
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("unhandled engine error")
		rw.InternalError("An internal error occurred")
	}
}
