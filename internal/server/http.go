// Package server exposes the workflow services over HTTP. Handlers
// translate service results into a uniform JSON envelope; anticipated
// workflow conditions stay 200 with success=false, infra trouble maps
// through the error package.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/service/discovery"
	"github.com/introweave/matchmaker/internal/service/proposal"
	"github.com/introweave/matchmaker/internal/service/quota"
	"github.com/introweave/matchmaker/internal/service/status"
)

// Server wires the workflow services into an HTTP handler.
type Server struct {
	appCtx    *app.AppContext
	statuses  *status.Service
	discovery *discovery.Service
	proposals *proposal.Service
	quotas    *quota.Service
}

func New(
	appCtx *app.AppContext,
	statuses *status.Service,
	disc *discovery.Service,
	proposals *proposal.Service,
	quotas *quota.Service,
) *Server {
	return &Server{
		appCtx:    appCtx,
		statuses:  statuses,
		discovery: disc,
		proposals: proposals,
		quotas:    quotas,
	}
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/matches/find", s.handleFindMatch).Methods("POST")
	api.HandleFunc("/proposals/send", s.handleSendProposal).Methods("POST")
	api.HandleFunc("/proposals/respond", s.handleRespond).Methods("POST")
	api.HandleFunc("/users/{userId}/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/users/{userId}/status", s.handleAdvanceStatus).Methods("POST")
	api.HandleFunc("/users/{userId}/quota", s.handleGetQuota).Methods("GET")
	api.HandleFunc("/admin/quota", s.handleSetQuotaLimits).Methods("PUT")

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

// Start blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	addr := s.appCtx.Config.HTTP.Host + ":" + s.appCtx.Config.HTTP.Port
	s.appCtx.Logger.Info("starting HTTP server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}
