package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/config"
	"github.com/hyperjump/rootcause/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"pump leaks oil", "-top-k", "3"},
			expected: []string{"-top-k", "3", "pump leaks oil"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "3", "pump leaks oil"},
			expected: []string{"-top-k", "3", "pump leaks oil"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"pump leaks oil"},
			expected: []string{"pump leaks oil"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"motor", "hums", "-component", "motor"},
			expected: []string{"-component", "motor", "motor", "hums"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"overheating"}, "overheating"},
		{"multiple words", []string{"motor", "smells", "burnt"}, "motor smells burnt"},
		{"single quoted phrase", []string{"motor smells burnt"}, "motor smells burnt"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestDiagnoseQuery_DefaultsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.DefaultTopK = 7
	cfg.Search.MinSimilarity = 0.2

	fs, f := newDiagnoseFlagSet("diagnose")
	require.NoError(t, fs.Parse([]string{"-component", "Pump"}))
	q := diagnoseQuery("leaks", f, cfg)
	assert.Equal(t, 7, q.TopK)
	assert.Equal(t, 0.2, q.MinSimilarity)
	assert.Equal(t, "Pump", q.Component)

	fs, f = newDiagnoseFlagSet("diagnose")
	require.NoError(t, fs.Parse([]string{"-top-k", "3", "-min-similarity", "0"}))
	q = diagnoseQuery("leaks", f, cfg)
	assert.Equal(t, 3, q.TopK)
	assert.Equal(t, 0.0, q.MinSimilarity)
}

func TestLoadConfig_FallsBackToWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9191\n"), 0644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, path, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "config.yaml", filepath.Base(path))
}

const seedCSV = `component,model,fault_description,root_cause,corrective_action
Pump,P-10,Pump vibrates loudly at high speed,Impeller imbalance,Balance the impeller
Motor,,Motor smells burnt after long runs,Winding insulation failure,Rewind the motor
Pump,P-10,Seal leaking water under the housing,Worn mechanical seal,Replace the seal
`

func writeConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "DATA_DIR", "FAULTS_CSV", "EMBED_MODEL", "EMBED_BATCH", "OLLAMA_HOST"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(dir, "config.yaml")
	yml := "storage:\n  data_dir: data\nembedding:\n  provider: hashing\n  dimensions: 128\nllm:\n  provider: none\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestInitializeComponents_BootstrapsFromSeed(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0755))
	require.NoError(t, os.WriteFile(cfg.Storage.SeedFile, []byte(seedCSV), 0644))
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Bootstrap.Added)
	assert.Nil(t, c.Proposer, "llm provider none disables narrowing")

	got, err := c.Engine.Diagnose(ctx, &models.DiagnoseQuery{Query: "pump vibrates loudly", TopK: 2})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Pump vibrates loudly at high speed", got[0].MatchedFaultDescription)

	n, err := c.Catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	c.Close()

	// A restart appends only rows the store has not seen.
	f, err := os.OpenFile(cfg.Storage.SeedFile, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("Fan,,Fan blades rattle,Loose blade bolts,Tighten the bolts\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err = initializeComponents(ctx, cfg, zap.NewNop(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Bootstrap.Added)
	assert.Equal(t, 4, c.Store.Len())
	c.Close()

	c, err = initializeComponents(ctx, cfg, zap.NewNop(), true)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 4, c.Bootstrap.Added)
	assert.Equal(t, 4, c.Store.Len())
}
