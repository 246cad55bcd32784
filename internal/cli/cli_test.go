package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/planproof/internal/testutil"
)

const (
	commaJoin = "SELECT a.x FROM t1 a, t2 b WHERE a.id = b.id"
	joinSwap  = "SELECT a.x FROM t2 b JOIN t1 a ON b.id = a.id"
	joinPlain = "SELECT a.x FROM t1 a JOIN t2 b ON a.id = b.id"
	wrongJoin = "SELECT a.x FROM t1 a JOIN t2 b ON a.id = b.key"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PLANPROOF_COST_DSN", "")
	t.Setenv("PLANPROOF_MODE", "")

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string, data interface{}) CLIResponse {
	t.Helper()
	var resp CLIResponse
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"validate", "canon", "rules", "optimize"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "log-level", "log-format", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "rules", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInvalidLogLevel(t *testing.T) {
	out, err := execute(t, "rules", "--log-level", "loud")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "Error [F0000]")
}

func TestRules(t *testing.T) {
	out, err := execute(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. normalize-expressions\n")
	assert.Contains(t, out, " 8. commute-joins\n")
}

func TestRulesRespectsConfig(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)
	path := testutil.WriteFile(t, dir, "planproof.yaml", "validator:\n  disabled_rules: [push-down-predicates]\n")

	out, err := execute(t, "rules", "--config", path, "--format", "json")
	require.NoError(t, err)

	var data struct {
		Rules []string `json:"rules"`
	}
	resp := decode(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, data.Rules, 7)
	assert.NotContains(t, data.Rules, "push-down-predicates")
}

func TestRulesBadConfigFile(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)
	path := testutil.WriteFile(t, dir, "planproof.yaml", "validator:\n  mood: strict\n")

	out, err := execute(t, "rules", "--config", path, "--format", "json")
	require.Error(t, err)
	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "F0000", resp.Error.Code)
}

func TestValidateEquivalent(t *testing.T) {
	out, err := execute(t, "validate", commaJoin, joinSwap)
	require.NoError(t, err)
	assert.Contains(t, out, "equivalent (confidence 1.00, mode strict)")
	assert.Contains(t, out, "reason: canonical plans match")
}

func TestValidateNotEquivalent(t *testing.T) {
	out, err := execute(t, "validate", commaJoin, wrongJoin)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "not equivalent (confidence")
	assert.Contains(t, out, "mismatch")
}

func TestValidateModeFlagJSON(t *testing.T) {
	out, err := execute(t, "validate", "SELECT a, b FROM t", "SELECT b, a FROM t", "--mode", "relaxed", "--format", "json")
	require.NoError(t, err)

	var report ValidationReport
	resp := decode(t, out, &report)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, report.Equivalent)
	assert.Equal(t, "relaxed", report.Mode)
	assert.Equal(t, 1.0, report.Confidence)
}

func TestValidateInvalidMode(t *testing.T) {
	_, err := execute(t, "validate", "SELECT a FROM t", "SELECT a FROM t", "--mode", "lenient")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, IsReported(err))
}

func TestValidateReadsFiles(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)
	a := testutil.WriteFile(t, dir, "a.sql", "SELECT x FROM t\nWHERE x > 5;\n")
	b := testutil.WriteFile(t, dir, "b.sql", "SELECT x FROM t WHERE 5 < x")

	out, err := execute(t, "validate", "@"+a, "@"+b)
	require.NoError(t, err)
	assert.Contains(t, out, "equivalent (confidence 1.00")
}

func TestValidateMissingFile(t *testing.T) {
	out, err := execute(t, "validate", "@/nonexistent/query.sql", "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [58P01]")
}

func TestValidateSyntaxErrorJSON(t *testing.T) {
	out, err := execute(t, "validate", "SELECT FROM WHERE", "SELECT x FROM t", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "42601", resp.Error.Code)
}

func TestValidateShowPlans(t *testing.T) {
	out, err := execute(t, "validate", commaJoin, joinPlain, "--show-plans")
	require.NoError(t, err)
	assert.Contains(t, out, "left:\n")
	assert.Contains(t, out, "right:\n")
	assert.Contains(t, out, "Scan(t1 AS a)")
}

func TestCanonText(t *testing.T) {
	out, err := execute(t, "canon", "SELECT x FROM t WHERE 5 < x")
	require.NoError(t, err)
	assert.Contains(t, out, "(x > 5)")
	assert.Contains(t, out, "Scan(t)")
}

func TestCanonJSON(t *testing.T) {
	out, err := execute(t, "canon", joinSwap, "--format", "json", "--show-original")
	require.NoError(t, err)

	var report CanonReport
	resp := decode(t, out, &report)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, report.Canonical)
	require.NotNil(t, report.Original)
	assert.NotEmpty(t, report.Canonical.Root.Type)
	assert.Equal(t, joinSwap, report.Canonical.SQL)
}

func TestCanonUnsupportedStatement(t *testing.T) {
	out, err := execute(t, "canon", "DELETE FROM t")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [0A000]")
}

func candidateFile(t *testing.T) string {
	t.Helper()
	dir, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)
	return testutil.WriteFile(t, dir, "candidates.yaml", `query: "`+commaJoin+`"
candidates:
  - "`+wrongJoin+`"
  - "`+joinPlain+`"
  - "`+joinSwap+`"
costs:
  - sql: "`+commaJoin+`"
    cost: 100
  - sql: "`+wrongJoin+`"
    cost: 10
  - sql: "`+joinPlain+`"
    cost: 80
  - sql: "`+joinSwap+`"
    cost: 50
`)
}

func TestOptimize(t *testing.T) {
	out, err := execute(t, "optimize", candidateFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "optimized: cost 100.00 -> 50.00 (2.00x)")
	assert.Contains(t, out, "rewrite:\n  "+joinSwap)
	assert.Contains(t, out, "[0] rejected")
}

func TestOptimizeFirstValidJSON(t *testing.T) {
	out, err := execute(t, "optimize", candidateFile(t), "--selection", "first_valid", "--format", "json")
	require.NoError(t, err)

	var outcome struct {
		Optimized    bool    `json:"optimized"`
		OptimizedSQL string  `json:"optimized_sql"`
		Ratio        float64 `json:"improvement_ratio"`
	}
	resp := decode(t, out, &outcome)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, outcome.Optimized)
	assert.Equal(t, joinPlain, outcome.OptimizedSQL)
	assert.Equal(t, 1.25, outcome.Ratio)
}

func TestOptimizeNotSelected(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)
	path := testutil.WriteFile(t, dir, "candidates.yaml", `query: "`+commaJoin+`"
candidates:
  - "`+joinSwap+`"
costs:
  - sql: "`+commaJoin+`"
    cost: 100
  - sql: "`+joinSwap+`"
    cost: 120
`)

	out, err := execute(t, "optimize", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out, nil)
	assert.Equal(t, "failed", resp.Status)
}

func TestOptimizeInputErrors(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"unknown field", "querry: SELECT 1\n", "F0000"},
		{"missing query", "candidates: [\"SELECT 1\"]\n", "F0000"},
		{"no cost source", "query: SELECT a FROM t\ncandidates: [\"SELECT a FROM t AS x\"]\n", "F0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, dir, tt.name+".yaml", tt.content)
			out, err := execute(t, "optimize", path, "--format", "json")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decode(t, out, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	out, err := execute(t, "optimize", "/nonexistent/candidates.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "Error [58P01]")
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "bad", NewExitError(ExitFailure, "bad").Error())
	assert.Equal(t, "bad: boom", WrapExitError(ExitCommandError, "bad", cause).Error())
	assert.Equal(t, "boom", (&ExitError{Code: ExitCommandError, Err: cause}).Error())
	assert.ErrorIs(t, WrapExitError(ExitCommandError, "bad", cause), cause)

	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", cause)))
	assert.False(t, IsReported(cause))
}
