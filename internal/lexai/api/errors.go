// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// errorBody is the JSON error envelope. Code is machine-readable and
// stable; Message is for humans and may change.
type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Used     *int64 `json:"used,omitempty"`
	Limit    *int64 `json:"limit,omitempty"`
	ResetsAt string `json:"resetsAt,omitempty"`
}

// writeError maps an error kind onto its HTTP status and envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: "internal", Message: "internal error"}

	switch {
	case errors.Is(err, model.ErrValidation):
		status, body.Code, body.Message = http.StatusBadRequest, "validation", err.Error()
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrVersionNotFound):
		status, body.Code, body.Message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, model.ErrForbidden):
		status, body.Code, body.Message = http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, model.ErrQuotaExceeded):
		status, body.Code, body.Message = http.StatusTooManyRequests, "quota_exceeded", err.Error()
		if qe, ok := model.AsQuotaExceeded(err); ok {
			body.Used = &qe.Used
			body.Limit = &qe.Limit
			body.ResetsAt = qe.ResetsAt.UTC().Format(time.RFC3339)
		}
	case errors.Is(err, model.ErrInfrastructure):
		status, body.Code, body.Message = http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable, retry later"
	default:
		log.WithError(err).Error("api: unclassified error")
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("api: encoding response")
	}
}
