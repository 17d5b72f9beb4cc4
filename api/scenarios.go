/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates a store with employees and sales so the payroll workflow can
	be walked end to end without an HR system feeding it.

AVAILABLE SCENARIOS:

	small-office:  Three salaried staff, no agents
	sales-team:    Two agents with sales spread over the period, one manager

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sales-team", "period": "2025-03"}

NOTE:

	Loading is additive and keyed by fixed ids; loading the same scenario
	twice fails on duplicate sales. Only use in development/demo environments.

SEE ALSO:
  - cmd/server/main.go: -seed flag
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Seeder is the write side a scenario needs. store/sqlite and
// store/postgres both satisfy it.
type Seeder interface {
	SaveEmployee(ctx context.Context, emp payroll.EmployeeProfile) error
	SaveSale(ctx context.Context, sale payroll.Sale) error
}

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario and the period its sales land in.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Period     string `json:"period"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, s Seeder, period payroll.Period) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "small-office",
			Name:        "Small Office",
			Description: "Three salaried employees across two departments",
		},
		load: loadSmallOffice,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "sales-team",
			Name:        "Sales Team",
			Description: "Two commissioned agents with sales, plus their manager",
		},
		load: loadSalesTeam,
	},
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// LoadScenario seeds s with the named scenario for period.
func LoadScenario(ctx context.Context, s Seeder, id string, period payroll.Period) error {
	if err := period.Validate(); err != nil {
		return err
	}
	for _, sc := range scenarios {
		if sc.ID == id {
			return sc.load(ctx, s, period)
		}
	}
	return fmt.Errorf("unknown scenario %q", id)
}

func loadSmallOffice(ctx context.Context, s Seeder, _ payroll.Period) error {
	employees := []payroll.EmployeeProfile{
		{ID: "emp-001", Name: "Hana Tesfaye", Department: "operations", BasicSalary: decimal.NewFromInt(4200)},
		{ID: "emp-002", Name: "Samuel Bekele", Department: "operations", BasicSalary: decimal.NewFromInt(2800)},
		{ID: "emp-003", Name: "Liya Alemu", Department: "finance", BasicSalary: decimal.NewFromInt(6500)},
	}
	return saveEmployees(ctx, s, employees)
}

func loadSalesTeam(ctx context.Context, s Seeder, period payroll.Period) error {
	employees := []payroll.EmployeeProfile{
		{ID: "agent-001", Name: "Meron Haile", Department: "sales", BasicSalary: decimal.NewFromInt(2000), AgentID: "AG-01"},
		{ID: "agent-002", Name: "Yonas Girma", Department: "sales", BasicSalary: decimal.NewFromInt(2200), AgentID: "AG-02"},
		{ID: "mgr-001", Name: "Selam Tadesse", Department: "sales", BasicSalary: decimal.NewFromInt(5500)},
	}
	if err := saveEmployees(ctx, s, employees); err != nil {
		return err
	}

	start := period.Start()
	sales := []payroll.Sale{
		{ID: "AG-01-" + period.String() + "-1", AgentID: "AG-01", CustomerName: "Abay Trading", SaleAmount: decimal.NewFromInt(12000), Date: start.AddDate(0, 0, 2)},
		{ID: "AG-01-" + period.String() + "-2", AgentID: "AG-01", CustomerName: "Blue Nile Foods", SaleAmount: decimal.RequireFromString("4350.50"), Date: start.AddDate(0, 0, 11)},
		{ID: "AG-01-" + period.String() + "-3", AgentID: "AG-01", CustomerName: "Entoto Logistics", SaleAmount: decimal.NewFromInt(800), Date: start.AddDate(0, 0, 24)},
		{ID: "AG-02-" + period.String() + "-1", AgentID: "AG-02", CustomerName: "Sheba Textiles", SaleAmount: decimal.NewFromInt(9100), Date: start.AddDate(0, 0, 6)},
	}
	for _, sale := range sales {
		if err := s.SaveSale(ctx, sale); err != nil {
			return fmt.Errorf("failed to save sale %s: %w", sale.ID, err)
		}
	}
	return nil
}

func saveEmployees(ctx context.Context, s Seeder, employees []payroll.EmployeeProfile) error {
	for _, emp := range employees {
		if err := s.SaveEmployee(ctx, emp); err != nil {
			return fmt.Errorf("failed to save employee %s: %w", emp.ID, err)
		}
	}
	return nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenarioHandler seeds the store.
// POST /api/scenarios/load
func (h *Handler) LoadScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		writeError(w, http.StatusNotFound, "", "Scenarios are not enabled", nil)
		return
	}
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	period, err := ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid period (use YYYY-MM)", err)
		return
	}
	if err := LoadScenario(r.Context(), h.Seeder, req.ScenarioID, period); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"scenario_id": req.ScenarioID, "period": period.String()})
}
