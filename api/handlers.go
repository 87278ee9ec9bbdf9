/*
handlers.go - HTTP API handlers for the crew time ledger

PURPOSE:
  Exposes the ledger, bulk engine, audit trail, aggregation, export and
  sync over REST. Handles HTTP request/response, JSON serialization, and
  delegates to the ledger.

ENDPOINTS:
  Employees:
    GET    /api/employees                       List employees (?inactive=true)
    POST   /api/employees                       Create employee
    GET    /api/employees/{id}                  Get employee
    DELETE /api/employees/{id}                  Deactivate employee

  Entries:
    GET    /api/employees/{id}/entries          List entries (?from&to)
    PUT    /api/employees/{id}/entries/{date}   Write hours/status
    DELETE /api/employees/{id}/entries/{date}   Clear the day
    GET    /api/employees/{id}/summary          Month summary (?month=YYYY-MM)

  Crew:
    POST   /api/bulk                            Same value for many employees
    GET    /api/history                         Audit trail (?employee_id&date&from&to&action&limit)
    GET    /api/export/{month}                  JSON snapshot, or .csv / .xlsx
    POST   /api/scans                           Apply a scanned slip (multipart)

  Sync:
    GET    /api/sync                            Reconciler status
    POST   /api/sync                            Run one sync now

ACTOR:
  Mutations are attributed to the X-Actor header (see actorMiddleware),
  falling back to ledger.DefaultActor.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown employee or entry
  - 409: A sync run is already in progress
  - 502: The remote store failed
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - hub.go: Remote hub endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/crewtime/export"
	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
)

// maxScanUpload bounds multipart scan uploads.
const maxScanUpload = 10 << 20

// defaultHistoryLimit applies when the client sends no limit.
const defaultHistoryLimit = 200

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Sync and Extractor are
// optional; their endpoints answer 404 / 501 when unset.
type Handler struct {
	Ledger    *ledger.Ledger
	Sync      *reconcile.Scheduler
	Extractor ledger.FieldExtractor
}

// NewHandler creates a handler over l.
func NewHandler(l *ledger.Ledger) *Handler {
	return &Handler{Ledger: l}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns active employees, or all with ?inactive=true.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("inactive"))

	employees, err := h.Ledger.Employees(r.Context(), includeInactive)
	if err != nil {
		writeLedgerError(w, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Ledger.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee adds an active employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp, err := h.Ledger.AddEmployee(r.Context(), req.Name, req.Position)
	if err != nil {
		writeLedgerError(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// DeactivateEmployee soft-deletes an employee. Entries and history stay.
func (h *Handler) DeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Ledger.DeactivateEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, "Failed to deactivate employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns entries ordered by date, bounded by ?from and ?to.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	var rng ledger.DateRange
	var err error
	if rng.From, err = optionalDate(r, "from"); err != nil {
		writeLedgerError(w, "Invalid from date", err)
		return
	}
	if rng.To, err = optionalDate(r, "to"); err != nil {
		writeLedgerError(w, "Invalid to date", err)
		return
	}

	entries, err := ledger.Collect(h.Ledger.ListEntries(r.Context(), chi.URLParam(r, "id"), rng))
	if err != nil {
		writeLedgerError(w, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// PutEntry writes one day. An existing entry is replaced.
func (h *Handler) PutEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID := chi.URLParam(r, "id")
	date, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeLedgerError(w, "Invalid date", err)
		return
	}

	var req PutEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		writeLedgerError(w, "Invalid status", err)
		return
	}

	prior, err := h.Ledger.UpsertEntry(ctx, employeeID, date, req.Hours, status)
	if err != nil {
		writeLedgerError(w, "Failed to write entry", err)
		return
	}
	entry, err := h.Ledger.Entry(ctx, employeeID, date)
	if err != nil {
		writeLedgerError(w, "Failed to read entry", err)
		return
	}

	resp := EntryWriteResponse{Entry: toEntryDTO(entry)}
	if prior != nil {
		p := toEntryDTO(*prior)
		resp.Prior = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearEntry resets one day to zero hours and no status.
func (h *Handler) ClearEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID := chi.URLParam(r, "id")
	date, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeLedgerError(w, "Invalid date", err)
		return
	}

	prior, err := h.Ledger.ClearEntry(ctx, employeeID, date)
	if err != nil {
		writeLedgerError(w, "Failed to clear entry", err)
		return
	}
	entry, err := h.Ledger.Entry(ctx, employeeID, date)
	if err != nil {
		writeLedgerError(w, "Failed to read entry", err)
		return
	}

	p := toEntryDTO(prior)
	writeJSON(w, http.StatusOK, EntryWriteResponse{Entry: toEntryDTO(entry), Prior: &p})
}

// GetSummary returns the per-status totals for ?month=YYYY-MM.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	month, err := ledger.ParseYearMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeLedgerError(w, "Invalid month", err)
		return
	}

	summary, err := h.Ledger.MonthSummary(r.Context(), chi.URLParam(r, "id"), month)
	if err != nil {
		writeLedgerError(w, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// BULK & HISTORY
// =============================================================================

// ApplyBulk writes one value for many employees. Per-employee failures are
// reported in the body with 200; only a malformed request fails as a whole.
func (h *Handler) ApplyBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeLedgerError(w, "Invalid date", err)
		return
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		writeLedgerError(w, "Invalid status", err)
		return
	}

	var result ledger.BulkResult
	if req.AllActive {
		result, err = h.Ledger.ApplyBulkActive(ctx, date, req.Hours, status)
		if err != nil {
			writeLedgerError(w, "Failed to apply bulk write", err)
			return
		}
	} else {
		if len(req.EmployeeIDs) == 0 {
			writeError(w, http.StatusBadRequest, "employee_ids is required unless all_active is set", nil)
			return
		}
		result = h.Ledger.ApplyBulk(ctx, req.EmployeeIDs, date, req.Hours, status)
	}
	writeJSON(w, http.StatusOK, toBulkResponse(result))
}

// GetHistory returns audit records, most recent first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.HistoryFilter{
		EmployeeID: q.Get("employee_id"),
		Limit:      defaultHistoryLimit,
	}
	if date, err := optionalDate(r, "date"); err != nil {
		writeLedgerError(w, "Invalid date", err)
		return
	} else if !date.IsZero() {
		filter.EntryDate = &date
	}
	from, err := optionalDate(r, "from")
	if err != nil {
		writeLedgerError(w, "Invalid from", err)
		return
	}
	to, err := optionalDate(r, "to")
	if err != nil {
		writeLedgerError(w, "Invalid to", err)
		return
	}
	filter.EntryRange = ledger.DateRange{From: from, To: to}
	if err := filter.EntryRange.Validate(); err != nil {
		writeLedgerError(w, "Invalid range", err)
		return
	}
	for _, action := range q["action"] {
		filter.Actions = append(filter.Actions, ledger.ActionKind(action))
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	dtos := []HistoryDTO{}
	for rec, err := range h.Ledger.History(r.Context(), filter) {
		if err != nil {
			writeLedgerError(w, "Failed to read history", err)
			return
		}
		dtos = append(dtos, toHistoryDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMonth renders a month. /api/export/2024-03 returns the JSON
// snapshot; a .csv or .xlsx suffix returns a file download and records the
// export in the audit trail.
func (h *Handler) ExportMonth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	param := chi.URLParam(r, "month")

	var format export.Format
	if name, ext, found := strings.Cut(param, "."); found {
		f, err := export.ParseFormat(ext)
		if err != nil {
			writeLedgerError(w, "Unsupported export format", err)
			return
		}
		param, format = name, f
	}
	month, err := ledger.ParseYearMonth(param)
	if err != nil {
		writeLedgerError(w, "Invalid month", err)
		return
	}

	snap, err := h.Ledger.Snapshot(ctx, month)
	if err != nil {
		writeLedgerError(w, "Failed to build snapshot", err)
		return
	}
	if format == "" {
		writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
		return
	}

	// Render fully before recording, so a failed render leaves no trail.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, snap); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render export", err)
		return
	}
	desc := fmt.Sprintf("exported %s as %s (%d employees)", month, format, len(snap.Sheets))
	if err := h.Ledger.RecordExport(ctx, desc); err != nil {
		writeLedgerError(w, "Failed to record export", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(month)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// SCANS
// =============================================================================

// ApplyScan accepts a multipart form with an "image" file plus
// employee_id, status and an optional fallback date.
func (h *Handler) ApplyScan(w http.ResponseWriter, r *http.Request) {
	if h.Extractor == nil {
		writeError(w, http.StatusNotImplemented, "No OCR service configured", nil)
		return
	}
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxScanUpload)
	if err := r.ParseMultipartForm(maxScanUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing image", err)
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image", err)
		return
	}

	status, err := ledger.ParseStatus(r.FormValue("status"))
	if err != nil {
		writeLedgerError(w, "Invalid status", err)
		return
	}
	req := ledger.ScanRequest{EmployeeID: r.FormValue("employee_id"), Status: status, Image: image}
	if raw := r.FormValue("date"); raw != "" {
		if req.FallbackDate, err = ledger.ParseDate(raw); err != nil {
			writeLedgerError(w, "Invalid date", err)
			return
		}
	}

	result, err := h.Ledger.ApplyScan(ctx, h.Extractor, req)
	if err != nil {
		writeLedgerError(w, "Failed to apply scan", err)
		return
	}

	resp := ScanResponse{
		CandidateHours: result.Fields.CandidateHours,
		CandidateText:  result.Fields.CandidateText,
	}
	if result.Fields.CandidateDate != nil {
		resp.CandidateDate = result.Fields.CandidateDate.String()
	}
	if entry, err := h.Ledger.Entry(ctx, req.EmployeeID, result.Date); err == nil {
		dto := toEntryDTO(entry)
		resp.Entry = &dto
	}
	if result.Prior != nil {
		dto := toEntryDTO(*result.Prior)
		resp.Prior = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SYNC
// =============================================================================

// GetSyncStatus reports the reconciler state.
func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.Sync == nil {
		pending, err := h.Ledger.PendingChanges(r.Context())
		if err != nil {
			writeLedgerError(w, "Failed to read pending changes", err)
			return
		}
		writeJSON(w, http.StatusOK, SyncStatusDTO{Pending: len(pending)})
		return
	}

	st, err := h.Sync.Reconciler.Status(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to read sync status", err)
		return
	}
	dto := SyncStatusDTO{
		Enabled:   true,
		Origin:    h.Sync.Reconciler.Origin(),
		State:     string(st.State),
		Pending:   st.Pending,
		Cursor:    st.Cursor,
		LastError: st.LastError,
	}
	if st.LastRun != nil {
		report := toSyncReportDTO(*st.LastRun)
		dto.LastRun = &report
	}
	writeJSON(w, http.StatusOK, dto)
}

// RunSync runs one sync cycle on the request context.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	if h.Sync == nil {
		writeError(w, http.StatusNotFound, "Sync is not configured", nil)
		return
	}

	report, err := h.Sync.RunNow(r.Context())
	if err != nil {
		writeLedgerError(w, "Sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncReportDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func optionalDate(r *http.Request, name string) (ledger.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return ledger.Date{}, nil
	}
	return ledger.ParseDate(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger and sync errors to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, reconcile.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, reconcile.ErrTransport):
		return http.StatusBadGateway
	default:
		log.Printf("[API] Internal error: %v", err)
		return http.StatusInternalServerError
	}
}
