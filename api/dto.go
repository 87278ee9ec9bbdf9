/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract. Dates travel as
  YYYY-MM-DD strings, months as YYYY-MM, hours as JSON numbers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Employees:  EmployeeDTO, CreateEmployeeRequest
  Entries:    EntryDTO, PutEntryRequest, EntryWriteResponse
  Bulk:       BulkRequest, BulkResponse, BulkFailureDTO
  History:    HistoryDTO
  Summary:    SummaryDTO, SnapshotDTO
  Scans:      ScanResponse
  Sync:       SyncStatusDTO, SyncReportDTO, ConflictDTO

VALIDATION:
  Validation is done by the ledger, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - hub.go: Hub endpoints reuse remote.UpsertRequest / remote.UpsertResponse
*/
package api

import (
	"time"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Position  string    `json:"position"`
	Active    bool      `json:"active"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateEmployeeRequest is the body of POST /api/employees.
type CreateEmployeeRequest struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

func toEmployeeDTO(e ledger.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		Name:      e.Name,
		Position:  e.Position,
		Active:    e.Active,
		Revision:  e.Revision,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

// EntryDTO represents one day of one employee.
type EntryDTO struct {
	EmployeeID string    `json:"employee_id"`
	Date       string    `json:"date"`
	Hours      float64   `json:"hours"`
	Status     string    `json:"status,omitempty"`
	Cleared    bool      `json:"cleared,omitempty"`
	Revision   int64     `json:"revision"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PutEntryRequest is the body of PUT /api/employees/{id}/entries/{date}.
type PutEntryRequest struct {
	Hours  float64 `json:"hours"`
	Status string  `json:"status"`
}

// EntryWriteResponse returns the stored entry and the value it replaced.
type EntryWriteResponse struct {
	Entry EntryDTO  `json:"entry"`
	Prior *EntryDTO `json:"prior,omitempty"`
}

func toEntryDTO(e ledger.TimeEntry) EntryDTO {
	dto := EntryDTO{
		EmployeeID: e.EmployeeID,
		Date:       e.Date.String(),
		Hours:      e.Hours.InexactFloat64(),
		Cleared:    e.Cleared,
		Revision:   e.Revision,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.Status != ledger.StatusNone {
		dto.Status = e.Status.String()
	}
	return dto
}

func toEntryDTOs(entries []ledger.TimeEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

// =============================================================================
// BULK
// =============================================================================

// BulkRequest is the body of POST /api/bulk. With AllActive set, EmployeeIDs
// is ignored and every active employee is written.
type BulkRequest struct {
	EmployeeIDs []string `json:"employee_ids"`
	AllActive   bool     `json:"all_active,omitempty"`
	Date        string   `json:"date"`
	Hours       float64  `json:"hours"`
	Status      string   `json:"status"`
}

type BulkFailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

type BulkResponse struct {
	Date      string           `json:"date"`
	Succeeded []string         `json:"succeeded"`
	Failed    []BulkFailureDTO `json:"failed"`
}

func toBulkResponse(r ledger.BulkResult) BulkResponse {
	resp := BulkResponse{
		Date:      r.Date.String(),
		Succeeded: r.Succeeded,
		Failed:    make([]BulkFailureDTO, len(r.Failed)),
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	for i, f := range r.Failed {
		resp.Failed[i] = BulkFailureDTO{EmployeeID: f.EmployeeID, Error: f.Err.Error()}
	}
	return resp
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryDTO is one audit record.
type HistoryDTO struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	EntryDate   string    `json:"entry_date,omitempty"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
}

func toHistoryDTO(h ledger.ChangeHistoryEntry) HistoryDTO {
	dto := HistoryDTO{
		Seq:         h.Seq,
		ID:          h.ID,
		Action:      string(h.Action),
		EmployeeID:  h.EmployeeID,
		Description: h.Description,
		Timestamp:   h.Timestamp,
		Actor:       h.Actor,
	}
	if h.EntryDate != nil {
		dto.EntryDate = h.EntryDate.String()
	}
	return dto
}

// =============================================================================
// SUMMARY & SNAPSHOT
// =============================================================================

// SummaryDTO holds all four statuses, zero when absent.
type SummaryDTO struct {
	EmployeeID string             `json:"employee_id"`
	Month      string             `json:"month"`
	Hours      map[string]float64 `json:"hours"`
	Total      float64            `json:"total"`
	Days       int                `json:"days"`
}

func toSummaryDTO(s ledger.MonthSummary) SummaryDTO {
	dto := SummaryDTO{
		EmployeeID: s.EmployeeID,
		Month:      s.Month.String(),
		Hours:      make(map[string]float64, len(ledger.Statuses)),
		Total:      s.Total().InexactFloat64(),
		Days:       s.Days,
	}
	for _, st := range ledger.Statuses {
		dto.Hours[st.String()] = s.Of(st).InexactFloat64()
	}
	return dto
}

type SnapshotSheetDTO struct {
	Employee EmployeeDTO `json:"employee"`
	Entries  []EntryDTO  `json:"entries"`
	Summary  SummaryDTO  `json:"summary"`
}

// SnapshotDTO is the JSON rendering of a month export.
type SnapshotDTO struct {
	Month       string             `json:"month"`
	GeneratedAt time.Time          `json:"generated_at"`
	Sheets      []SnapshotSheetDTO `json:"sheets"`
}

func toSnapshotDTO(s ledger.Snapshot) SnapshotDTO {
	dto := SnapshotDTO{
		Month:       s.Month.String(),
		GeneratedAt: s.GeneratedAt,
		Sheets:      make([]SnapshotSheetDTO, len(s.Sheets)),
	}
	for i, sheet := range s.Sheets {
		dto.Sheets[i] = SnapshotSheetDTO{
			Employee: toEmployeeDTO(sheet.Employee),
			Entries:  toEntryDTOs(sheet.Entries),
			Summary:  toSummaryDTO(sheet.Summary),
		}
	}
	return dto
}

// =============================================================================
// SCANS
// =============================================================================

// ScanResponse reports what OCR read and the entry it produced.
type ScanResponse struct {
	CandidateDate  string    `json:"candidate_date,omitempty"`
	CandidateHours *float64  `json:"candidate_hours,omitempty"`
	CandidateText  string    `json:"candidate_text,omitempty"`
	Entry          *EntryDTO `json:"entry,omitempty"`
	Prior          *EntryDTO `json:"prior,omitempty"`
}

// =============================================================================
// SYNC
// =============================================================================

type ConflictDTO struct {
	Key            string `json:"key"`
	LocalRevision  int64  `json:"local_revision"`
	RemoteRevision int64  `json:"remote_revision"`
	Winner         string `json:"winner"`
	Superseded     string `json:"superseded"`
}

type SyncReportDTO struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Pushed     int           `json:"pushed"`
	Rejected   int           `json:"rejected"`
	Pulled     int           `json:"pulled"`
	Applied    int           `json:"applied"`
	Skipped    int           `json:"skipped"`
	Cursor     int64         `json:"cursor"`
	Conflicts  []ConflictDTO `json:"conflicts"`
}

type SyncStatusDTO struct {
	Enabled   bool           `json:"enabled"`
	Origin    string         `json:"origin,omitempty"`
	State     string         `json:"state,omitempty"`
	Pending   int            `json:"pending"`
	Cursor    int64          `json:"cursor"`
	LastRun   *SyncReportDTO `json:"last_run,omitempty"`
	LastError string         `json:"last_error,omitempty"`
}

func toSyncReportDTO(r reconcile.Report) SyncReportDTO {
	dto := SyncReportDTO{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Pushed:     r.Pushed,
		Rejected:   r.Rejected,
		Pulled:     r.Pulled,
		Applied:    r.Applied,
		Skipped:    r.Skipped,
		Cursor:     r.Cursor,
		Conflicts:  make([]ConflictDTO, len(r.Conflicts)),
	}
	for i, c := range r.Conflicts {
		dto.Conflicts[i] = ConflictDTO{
			Key:            c.Key.String(),
			LocalRevision:  c.LocalRevision,
			RemoteRevision: c.RemoteRevision,
			Winner:         c.Winner,
			Superseded:     c.Superseded,
		}
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
