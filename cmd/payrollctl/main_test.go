package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, v := range []string{"DB_DRIVER", "DB_DSN", "RATES_FILE", "BATCH_CONCURRENCY", "BATCH_INTERVAL", "APP_PORT"} {
		t.Setenv(v, "")
	}
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRates(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commission:\n  preset: report_b\n"), 0o600))
	return path
}

func TestRatesCheck(t *testing.T) {
	out, err := execute(t, "rates", "check", writeRates(t))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "tax_brackets:")

	_, err = execute(t, "rates", "check")
	assert.Error(t, err, "no file and no RATES_FILE")
}

func TestRatesTax(t *testing.T) {
	out, err := execute(t, "--rates", writeRates(t), "rates", "tax", "3000")
	require.NoError(t, err)
	assert.Equal(t, "310\n", out)

	_, err = execute(t, "--rates", writeRates(t), "rates", "tax", "lots")
	assert.Error(t, err)
}

func TestRatesPresets(t *testing.T) {
	out, err := execute(t, "rates", "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "report_a")
	assert.Contains(t, out, "report_b")
}

func TestBatchAndHistory(t *testing.T) {
	// GIVEN: a database file with one employee
	dbPath := filepath.Join(t.TempDir(), "payroll.db")
	s, err := sqlite.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveEmployee(context.Background(), payroll.EmployeeProfile{
		ID: "emp-1", Name: "Abebe", BasicSalary: decimal.NewFromInt(3000),
	}))
	require.NoError(t, s.Close())
	rates := writeRates(t)

	// WHEN
	out, err := execute(t, "--db", dbPath, "--rates", rates, "batch", "2025-03")

	// THEN
	require.NoError(t, err)
	assert.Contains(t, out, "1 succeeded, 0 failed")
	assert.Contains(t, out, "net 2480.00")

	out, err = execute(t, "--db", dbPath, "--rates", rates, "batch", "2025-03", "ghost", "--fail-on-error")
	assert.Error(t, err)
	assert.Contains(t, out, "fail  ghost")

	_, err = execute(t, "--db", dbPath, "--rates", rates, "batch", "March")
	assert.Error(t, err)

	out, err = execute(t, "--db", dbPath, "--rates", rates, "history", "--employee", "emp-1")
	require.NoError(t, err)
	var snaps []payroll.PayrollHistory
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	assert.Empty(t, snaps, "nothing finalized yet")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
