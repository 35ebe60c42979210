package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loandesk/pkg/accounts"
	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/ledger"
	"github.com/shopspring/decimal"
)

const dateOnly = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   string(kind),
		"message": apperr.MessageOf(err),
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func parseLoanID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid loan id %q", raw)
	}
	return id, nil
}

// parseDate accepts RFC3339 or YYYY-MM-DD. A date-only upper bound extends to
// the last instant of that day.
func parseDate(name, raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateOnly, raw, time.UTC)
	if err != nil {
		return nil, apperr.Validation("%s must be RFC3339 or YYYY-MM-DD", name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (s *Server) nextAccountHandler(w http.ResponseWriter, r *http.Request) {
	next, err := s.allocator.NextAccountNumber(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nextAccountNo": next})
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req accounts.OpenAccountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	loan, err := s.registry.OpenAccount(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.registry.ListLoans(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseLoanID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	loan, err := s.registry.GetLoan(r.Context(), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseLoanID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.registry.DeleteLoan(r.Context(), loanID); err != nil {
		s.writeError(w, r, err)
		return
	}
	// The loan's payments went with it.
	s.ledger.Invalidate(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assignIndexHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountNo string `json:"accountNo"`
		Index     int    `json:"index"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.slots.AssignSlot(r.Context(), strings.TrimSpace(req.AccountNo), req.Index); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) reorderHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Loans *[]string `json:"loans"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Loans == nil {
		s.writeError(w, r, apperr.Validation("loans must be an array of loan ids"))
		return
	}

	if err := s.reorderer.Reorder(r.Context(), *req.Loans); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) auditHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.slots.AuditSlots(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountNo  string          `json:"accountNo"`
		Amount     decimal.Decimal `json:"amount"`
		Date       string          `json:"date"`
		LateAmount decimal.Decimal `json:"lateAmount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	date, err := parseDate("date", req.Date, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if date == nil {
		s.writeError(w, r, apperr.Validation("date is required"))
		return
	}

	payment, err := s.ledger.RecordPayment(r.Context(), strings.TrimSpace(req.AccountNo), req.Amount, *date, req.LateAmount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) paymentHistoriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseDate("startDate", q.Get("startDate"), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := parseDate("endDate", q.Get("endDate"), true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		s.writeError(w, r, apperr.Validation("endDate must not be before startDate"))
		return
	}

	var accountNos []string
	for _, raw := range q["accountNos"] {
		accountNos = append(accountNos, strings.Split(raw, ",")...)
	}

	history, err := s.ledger.History(r.Context(), accountNos, ledger.HistoryRange{Start: start, End: end})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) deleteAllPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID string `json:"loanId"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	loanID, err := parseLoanID(req.LoanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deleted, err := s.ledger.DeleteAllForLoan(r.Context(), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": deleted,
		"message":      fmt.Sprintf("deleted %d payments for loan %s", deleted, loanID),
	})
}
