// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/calldrop/calldrop/internal/logging"
	"github.com/calldrop/calldrop/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "ok",
		Version:   Version,
	}
	status := http.StatusOK

	if err := s.repo.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("health database ping failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, r, status, resp)
}
