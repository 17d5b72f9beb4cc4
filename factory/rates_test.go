package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/payroll"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseRatesYAML_PresetAndOverrides(t *testing.T) {
	// GIVEN: a document overriding pension and multipliers, commission by preset
	doc := `
tax_base: basic
pension:
  employee_rate: 0.08
overtime:
  multipliers:
    holiday: 3
deduction_day_divisor: 26
commission:
  preset: report_b
`
	// WHEN
	rates, err := ParseRatesYAML([]byte(doc))

	// THEN
	require.NoError(t, err)
	assert.Equal(t, payroll.TaxBaseBasic, rates.TaxBase)
	assert.True(t, d("0.08").Equal(rates.PensionEmployeeRate))
	assert.True(t, d("0.11").Equal(rates.PensionEmployerRate), "unset fields keep defaults")
	assert.True(t, d("3").Equal(rates.OvertimeMultipliers.Holiday))
	assert.True(t, d("1.5").Equal(rates.OvertimeMultipliers.Day))
	assert.Equal(t, 26, rates.DeductionDayDivisor)
	assert.True(t, d("0.10").Equal(rates.Commission.Rate))
	assert.True(t, d("0.05").Equal(rates.Commission.TaxRate))
	assert.Len(t, rates.TaxBrackets, len(payroll.DefaultTaxBrackets))
}

func TestParseRatesJSON_ExplicitCommissionWinsOverPreset(t *testing.T) {
	rates, err := ParseRatesJSON([]byte(`{"commission": {"preset": "report_a", "tax_rate": "0.01"}}`))
	require.NoError(t, err)
	assert.True(t, d("0.07").Equal(rates.Commission.Rate))
	assert.True(t, d("0.01").Equal(rates.Commission.TaxRate))
}

func TestParseRates_CommissionIsRequired(t *testing.T) {
	_, err := ParseRatesJSON([]byte(`{}`))
	assert.ErrorIs(t, err, payroll.ErrCommissionNotConfigured)

	_, err = ParseRatesYAML([]byte("commission:\n  preset: report_c\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_c")
}

func TestParseRates_BracketTable(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "continuous table",
			doc: `{"commission": {"preset": "report_b"}, "tax_brackets": [
				{"threshold": 0, "base": 0, "rate": 0},
				{"threshold": 1000, "base": 0, "rate": 0.1},
				{"threshold": 2000, "base": 100, "rate": 0.2}]}`,
		},
		{
			name: "base does not continue the previous bracket",
			doc: `{"commission": {"preset": "report_b"}, "tax_brackets": [
				{"threshold": 0, "base": 0, "rate": 0},
				{"threshold": 1000, "base": 0, "rate": 0.1},
				{"threshold": 2000, "base": 150, "rate": 0.2}]}`,
			wantErr: true,
		},
		{
			name: "first bracket above zero",
			doc: `{"commission": {"preset": "report_b"}, "tax_brackets": [
				{"threshold": 100, "base": 0, "rate": 0.1}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rates, err := ParseRatesJSON([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, rates.TaxBrackets, 3)
			assert.True(t, d("200").Equal(payroll.TaxTable(rates.TaxBrackets).Compute(d("2500"))))
		})
	}
}

func TestParseRates_Malformed(t *testing.T) {
	_, err := ParseRatesJSON([]byte(`{"pension": `))
	assert.Error(t, err)
	_, err = ParseRatesYAML([]byte("pension: [1, 2"))
	assert.Error(t, err)
}

func TestLoadRatesFile_ByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "rates.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("commission:\n  preset: report_a\n"), 0o600))
	rates, err := LoadRatesFile(yamlPath)
	require.NoError(t, err)
	assert.True(t, d("0.00075").Equal(rates.Commission.TaxRate))

	jsonPath := filepath.Join(dir, "rates.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"commission": {"rate": 0.12, "tax_rate": 0}}`), 0o600))
	rates, err = LoadRatesFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, d("0.12").Equal(rates.Commission.Rate))

	txtPath := filepath.Join(dir, "rates.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte(""), 0o600))
	_, err = LoadRatesFile(txtPath)
	assert.Error(t, err)

	_, err = LoadRatesFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestToDocument_RoundTripsThroughYAML(t *testing.T) {
	// GIVEN: non-default rates
	rates := payroll.DefaultRates()
	rates.Commission, _ = CommissionPreset(PresetReportB)
	rates.MonthDays = 26

	// WHEN
	out, err := yaml.Marshal(ToDocument(rates))
	require.NoError(t, err)
	back, err := ParseRatesYAML(out)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 26, back.MonthDays)
	assert.True(t, rates.Commission.Rate.Equal(back.Commission.Rate))
	require.Len(t, back.TaxBrackets, len(rates.TaxBrackets))
	for i := range rates.TaxBrackets {
		assert.True(t, rates.TaxBrackets[i].Base.Equal(back.TaxBrackets[i].Base))
	}
}

func TestPresetNames(t *testing.T) {
	assert.Equal(t, []string{PresetReportA, PresetReportB}, PresetNames())
}
