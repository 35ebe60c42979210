package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/loandesk/pkg/accounts"
	"github.com/mcclellann/loandesk/pkg/cache"
	"github.com/mcclellann/loandesk/pkg/ledger"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/sirupsen/logrus"
)

// Server holds the engine components behind the HTTP API.
type Server struct {
	registry  *accounts.Registry
	allocator *accounts.Allocator
	slots     *accounts.SlotManager
	reorderer *accounts.Reorderer
	ledger    *ledger.Ledger
	storage   store.Storage // Keep a reference to the storage to close it
	log       logrus.FieldLogger
}

func NewServer(s store.Storage, c cache.Cache, historyTTL time.Duration, log logrus.FieldLogger) *Server {
	return &Server{
		registry:  accounts.NewRegistry(s, log),
		allocator: accounts.NewAllocator(s, log),
		slots:     accounts.NewSlotManager(s, log),
		reorderer: accounts.NewReorderer(s, log),
		ledger:    ledger.NewLedger(s, c, historyTTL, log),
		storage:   s,
		log:       log,
	}
}

// Close releases the storage handle.
func (s *Server) Close() error {
	return s.storage.Close()
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	// Registered before /loans/{id} so "next-account" is not taken for an id.
	router.HandleFunc("/loans/next-account", s.nextAccountHandler).Methods("GET")
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")

	router.HandleFunc("/loansDoc/assignIndex", s.assignIndexHandler).Methods("POST")
	router.HandleFunc("/loansDoc/reorder", s.reorderHandler).Methods("POST")
	router.HandleFunc("/loansDoc/audit", s.auditHandler).Methods("POST")

	router.HandleFunc("/loanPayments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loanPayments/deleteAll", s.deleteAllPaymentsHandler).Methods("DELETE")
	router.HandleFunc("/payment-histories", s.paymentHistoriesHandler).Methods("GET")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	})
}
