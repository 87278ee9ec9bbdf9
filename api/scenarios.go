/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the ledger with realistic crew
  data for demos. Each scenario creates employees and writes entries through
  the normal ledger operations, so every step lands in the audit trail and
  the pending-change set like any other edit.

AVAILABLE SCENARIOS:
  march-crew:   Jan replaces a work day with sick leave, then a crew-wide
                bulk write (Jan: work=8, sick=4 for March 2024)
  full-week:    Four-person crew, one week of work with a sick day, a
                vacation day and a force-majeure stop

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "march-crew"}

NOTE:
  Scenarios only add data. The audit trail is append-only, so there is no
  reset; load scenarios into a fresh database.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/crewtime/ledger"
)

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse lists the employees the scenario created.
type LoadScenarioResponse struct {
	ScenarioID string        `json:"scenario_id"`
	Employees  []EmployeeDTO `json:"employees"`
}

type scenarioLoader func(ctx context.Context, l *ledger.Ledger) ([]ledger.Employee, error)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "march-crew",
		Name:        "March Crew",
		Description: "Work day replaced by sick leave, then a bulk work day for two employees",
	},
	{
		ID:          "full-week",
		Name:        "Full Week",
		Description: "Four-person crew, one week of work with sick, vacation and force-majeure days",
	},
}

var scenarioLoaders = map[string]scenarioLoader{
	"march-crew": loadMarchCrewScenario,
	"full-week":  loadFullWeekScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario runs a scenario against the ledger.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if ledger.ActorFromContext(ctx) == ledger.DefaultActor {
		ctx = ledger.ContextWithActor(ctx, "scenario:"+req.ScenarioID)
	}
	employees, err := load(ctx, h.Ledger)
	if err != nil {
		writeLedgerError(w, "Failed to load scenario", err)
		return
	}

	resp := LoadScenarioResponse{ScenarioID: req.ScenarioID, Employees: make([]EmployeeDTO, len(employees))}
	for i, e := range employees {
		resp.Employees[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LOADERS
// =============================================================================

func loadMarchCrewScenario(ctx context.Context, l *ledger.Ledger) ([]ledger.Employee, error) {
	jan, err := l.AddEmployee(ctx, "Jan Kowalski", "Bricklayer")
	if err != nil {
		return nil, err
	}
	piotr, err := l.AddEmployee(ctx, "Piotr Nowak", "Carpenter")
	if err != nil {
		return nil, err
	}

	day5 := ledger.NewDate(2024, time.March, 5)
	if _, err := l.UpsertEntry(ctx, jan.ID, day5, 8, ledger.StatusWork); err != nil {
		return nil, err
	}
	if _, err := l.UpsertEntry(ctx, jan.ID, day5, 4, ledger.StatusSick); err != nil {
		return nil, err
	}

	res := l.ApplyBulk(ctx, []string{jan.ID, piotr.ID}, ledger.NewDate(2024, time.March, 6), 8, ledger.StatusWork)
	if !res.AllSucceeded() {
		return nil, res.Failed[0].Err
	}
	return []ledger.Employee{jan, piotr}, nil
}

func loadFullWeekScenario(ctx context.Context, l *ledger.Ledger) ([]ledger.Employee, error) {
	crew := []struct{ name, position string }{
		{"Jan Kowalski", "Bricklayer"},
		{"Piotr Nowak", "Carpenter"},
		{"Anna Wiśniewska", "Site Manager"},
		{"Tomasz Zieliński", "Electrician"},
	}

	var employees []ledger.Employee
	var ids []string
	for _, c := range crew {
		emp, err := l.AddEmployee(ctx, c.name, c.position)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
		ids = append(ids, emp.ID)
	}

	monday := ledger.NewDate(2024, time.March, 4)
	for day := range 5 {
		res := l.ApplyBulk(ctx, ids, monday.AddDays(day), 8, ledger.StatusWork)
		if !res.AllSucceeded() {
			return nil, res.Failed[0].Err
		}
	}

	// Exceptions replace the bulk-written work days.
	exceptions := []struct {
		emp    ledger.Employee
		offset int
		hours  float64
		status ledger.Status
	}{
		{employees[1], 2, 8, ledger.StatusSick},
		{employees[2], 4, 8, ledger.StatusVacation},
		{employees[3], 3, 5, ledger.StatusForceMajeure},
	}
	for _, ex := range exceptions {
		if _, err := l.UpsertEntry(ctx, ex.emp.ID, monday.AddDays(ex.offset), ex.hours, ex.status); err != nil {
			return nil, err
		}
	}
	return employees, nil
}
