package http

import (
	"net/http"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
)

func (s *Server) handleCreateFeeRecord(w http.ResponseWriter, r *http.Request) {
	var req createFeeRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := req.Key()
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.ledger.CreateFeeRecord(r.Context(), ledger.CreateFeeRecordInput{
		AdmissionNo: r.PathValue("admissionNo"),
		Key:         key,
		Class:       sanitizeInput(req.Class),
		Charges:     req.charges(),
		PaidAmount:  req.PaidAmount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Fee record created successfully",
		"fee":     ledger.NewRecordView(rec),
	})
}

func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := req.Key()
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.ledger.ApplyPayment(r.Context(), r.PathValue("admissionNo"), key, *req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Payment updated successfully",
		"fee":     ledger.NewRecordView(rec),
	})
}

func (s *Server) handleGetCalendarRecord(w http.ResponseWriter, r *http.Request) {
	month, err := pathInt(r, "month")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := pathInt(r, "year")
	if err != nil {
		writeError(w, r, err)
		return
	}
	key, err := core.NewCalendarKey(month, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writePeriodRecord(w, r, key)
}

func (s *Server) handleGetAcademicRecord(w http.ResponseWriter, r *http.Request) {
	month, err := pathInt(r, "month")
	if err != nil {
		writeError(w, r, err)
		return
	}
	key, err := core.NewAcademicKey(month, r.PathValue("academicYear"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writePeriodRecord(w, r, key)
}

func (s *Server) writePeriodRecord(w http.ResponseWriter, r *http.Request, key core.PeriodKey) {
	view, err := s.ledger.GetPeriodRecord(r.Context(), r.PathValue("admissionNo"), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePeriodSummary(w http.ResponseWriter, r *http.Request) {
	scheme, err := core.ParseScheme(r.URL.Query().Get("scheme"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.ledger.GetPeriodSummary(r.Context(), r.PathValue("admissionNo"), scheme)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleLifetimeSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.GetLifetimeSummary(r.Context(), r.PathValue("admissionNo"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.ledger.GetRangeSummary(r.Context(), r.PathValue("admissionNo"), req.DateFrom, req.DateTo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.GetAcademicYearStatement(r.Context(), r.PathValue("admissionNo"), r.PathValue("academicYear"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClassFeeTable(w http.ResponseWriter, r *http.Request) {
	var req classTableRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.ledger.GetClassFeeTable(r.Context(), req.ClassName, req.AcademicYear)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGenerateClassFees(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := req.Key()
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.ledger.GenerateClassFees(r.Context(), req.ClassName, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
