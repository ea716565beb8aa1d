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

// Package api implements the public-facing HTTP server: contract CRUD,
// analysis admission, version comparison, the WebSocket upgrade, and
// health probes. Handlers are thin: they authenticate, decode, call a
// service, and map error kinds onto stable HTTP statuses.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/admission"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/auth"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/fingerprint"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/store"
)

// maxRequestBody bounds decoded request payloads; contract bodies are
// truncated to the model limit later, but the transport should not
// accept unbounded uploads.
const maxRequestBody = 1 << 20

// Pinger is a readiness-checkable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes the HTTP surface.
type Server struct {
	admission *admission.Service
	contracts store.ContractStore
	analyses  store.AnalysisStore
	verifier  *auth.Verifier
	ws        http.Handler
	pingers   map[string]Pinger

	now   func() time.Time
	newID func() string
}

// NewServer wires the HTTP surface. pingers maps backend names to their
// readiness checks ("redis", "mongo", "broker").
func NewServer(adm *admission.Service, contracts store.ContractStore, analyses store.AnalysisStore,
	verifier *auth.Verifier, ws http.Handler, pingers map[string]Pinger) *Server {
	return &Server{
		admission: adm,
		contracts: contracts,
		analyses:  analyses,
		verifier:  verifier,
		ws:        ws,
		pingers:   pingers,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/contracts", s.authenticated(s.handleCreateContract))
	mux.Handle("GET /api/contracts/{id}", s.authenticated(s.handleGetContract))
	mux.Handle("DELETE /api/contracts/{id}", s.authenticated(s.handleDeleteContract))
	mux.Handle("POST /api/contracts/{id}/versions", s.authenticated(s.handleAppendVersion))
	mux.Handle("POST /api/contracts/{id}/analyze", s.authenticated(s.handleAnalyze))
	mux.Handle("POST /api/contracts/{id}/diff", s.authenticated(s.handleDiff))
	mux.Handle("GET /api/analyses/{id}", s.authenticated(s.handleGetAnalysis))
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
}

// authenticated verifies the bearer token and hands the claims to the
// wrapped handler.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, claims)
	})
}

type createContractRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	AlertDays []int  `json:"alertDays,omitempty"`
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req createContractRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Title == "" || len(req.Body) < admission.MinBodyChars {
		writeError(w, model.ErrValidation)
		return
	}
	alertDays := req.AlertDays
	if len(alertDays) == 0 {
		alertDays = model.DefaultAlertDays
	}

	now := s.now().UTC()
	fp := fingerprint.Hash(req.Body)
	contract := &model.Contract{
		ID:          s.newID(),
		TenantID:    claims.TenantID,
		Title:       req.Title,
		Body:        req.Body,
		Fingerprint: fp,
		Versions: []model.ContractVersion{
			{Version: 1, Body: req.Body, Fingerprint: fp, CreatedAt: now},
		},
		AlertDays: alertDays,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.contracts.Create(r.Context(), contract); err != nil {
		writeError(w, err)
		return
	}
	log.WithFields(log.Fields{"contract": contract.ID, "tenant": claims.TenantID}).
		Info("api: contract created")
	writeJSON(w, http.StatusCreated, contract)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	contract, err := s.contracts.Get(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if err := s.contracts.SoftDelete(r.Context(), claims.TenantID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appendVersionRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleAppendVersion(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req appendVersionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Body) < admission.MinBodyChars {
		writeError(w, model.ErrValidation)
		return
	}
	contract, err := s.contracts.AppendVersion(r.Context(), claims.TenantID, r.PathValue("id"),
		req.Body, fingerprint.Hash(req.Body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

type analyzeRequest struct {
	Version int `json:"version,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req analyzeRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	res, err := s.admission.Analyze(r.Context(), identity(claims), r.PathValue("id"), req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if res.Outcome == admission.OutcomeCacheHit {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type diffRequest struct {
	VersionA int `json:"versionA"`
	VersionB int `json:"versionB"`
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req diffRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.admission.Diff(r.Context(), identity(claims), r.PathValue("id"), req.VersionA, req.VersionB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	analysis, err := s.analyses.Get(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz pings every backend; any failure flips readiness off so
// the load balancer drains this instance.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.pingers))
	for name, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, checks)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, model.ErrValidation)
		return false
	}
	return true
}

func identity(claims *auth.Claims) admission.Identity {
	return admission.Identity{UserID: claims.UserID, TenantID: claims.TenantID, Plan: claims.Plan}
}
