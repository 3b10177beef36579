package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/bamboo/internal/fakebamboo"
)

type run struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, args ...string) run {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return run{code: code, stdout: out.String(), stderr: errOut.String()}
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BAMBOO_CONFIG", "BAMBOO_URL", "BAMBOO_LOG_LEVEL", "BAMBOO_RETRY_TRIES", "BAMBOO_RETRY_MODE"} {
		t.Setenv(k, "")
	}
}

func TestDatasetLifecycle(t *testing.T) {
	isolateEnv(t)
	srv, ts := fakebamboo.Start(t)

	path := filepath.Join(t.TempDir(), "good_eats.csv")
	require.NoError(t, os.WriteFile(path, fakebamboo.GoodEatsCSV, 0o600))

	base := []string{"--url", ts.URL, "--log-level", "error"}
	with := func(args ...string) []string { return append(append([]string(nil), base...), args...) }

	r := execute(t, with("create", "--file", path)...)
	require.Equal(t, 0, r.code, r.stderr)
	id := strings.TrimSpace(r.stdout)
	require.NotEmpty(t, id)
	assert.True(t, srv.Exists(id))

	r = execute(t, with("info", id)...)
	require.Equal(t, 0, r.code, r.stderr)
	var info struct {
		NumRows    int `json:"num_rows"`
		NumColumns int `json:"num_columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &info))
	assert.Equal(t, fakebamboo.GoodEatsRows, info.NumRows)
	assert.Equal(t, fakebamboo.GoodEatsColumns, info.NumColumns)

	r = execute(t, with("columns", id)...)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, strings.Split(strings.TrimSpace(r.stdout), "\n"), "amount")

	r = execute(t, with("data", id, "--select", "amount,rating", "--limit", "2")...)
	require.Equal(t, 0, r.code, r.stderr)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &rows))
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "amount")
	assert.NotContains(t, rows[0], "food_type")

	r = execute(t, with("count", id, "amount")...)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "19", strings.TrimSpace(r.stdout))

	r = execute(t, with("calc", "add", id, "double_amount = amount * 2")...)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "ok", strings.TrimSpace(r.stdout))

	r = execute(t, with("calc", "list", id)...)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "double_amount")

	r = execute(t, with("delete", id)...)
	require.Equal(t, 0, r.code, r.stderr)
	assert.False(t, srv.Exists(id))
}

func TestCalcAddRejectsAggregationBeforeDispatch(t *testing.T) {
	isolateEnv(t)
	srv, ts := fakebamboo.Start(t)

	r := execute(t, "--url", ts.URL, "--log-level", "error", "calc", "add", "some-id", "total = sum(amount)")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "classification_mismatch")
	assert.Zero(t, srv.Requests())
}

func TestDataRejectsBadQueryJSON(t *testing.T) {
	isolateEnv(t)
	srv, ts := fakebamboo.Start(t)

	r := execute(t, "--url", ts.URL, "data", "some-id", "--query", "{not json")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "query")
	assert.Zero(t, srv.Requests())

	r = execute(t, "--url", ts.URL, "data", "some-id", "--query", `["a list"]`)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "must be a mapping")
}

func TestVersion(t *testing.T) {
	isolateEnv(t)
	_, ts := fakebamboo.Start(t)

	r := execute(t, "--url", ts.URL, "version")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, fakebamboo.Version)
}

func TestInvalidConfigFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "bamboo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  backoff: 1\n"), 0o600))

	r := execute(t, "--config", path, "version")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "retry.backoff")
}
