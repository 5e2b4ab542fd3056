package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1, c.Workflow.DefaultCategory)
	assert.Equal(t, "email", c.Workflow.DefaultDeliveryMode)
	assert.Equal(t, 50, c.Workflow.CollaborativeMinProficiency)
	assert.Len(t, c.Workflow.Stages, 4)
	assert.Len(t, c.Workflow.Categories, 3)
	assert.Equal(t, 5, c.Classifier.TopK)
	assert.Equal(t, "distress", c.Classifier.Namespace)
	assert.Equal(t, FAILURE_POLICY_OPEN, c.Classifier.FailurePolicy)
	assert.True(t, c.ClassifierEnabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `{
		"api_port": "9090",
		"workflow": {"default_category": 2, "stages": [{"no": 1, "name": "ONLY", "prompt": "p"}]},
		"classifier": {"enabled": false, "red_threshold": 0.7, "index": "database"}
	}`)
	t.Setenv("DISTRESS_YELLOW_THRESHOLD", "0.5")
	t.Setenv("DISTRESS_FAILURE_POLICY", "closed")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", c.ApiPort)
	assert.Equal(t, 2, c.Workflow.DefaultCategory)
	assert.Len(t, c.Workflow.Stages, 1)
	red, yellow := c.Thresholds()
	assert.Equal(t, 0.7, red)
	assert.Equal(t, 0.5, yellow)
	assert.Equal(t, FAILURE_POLICY_CLOSED, c.Classifier.FailurePolicy)
	assert.Equal(t, INDEX_DATABASE, c.Classifier.Index)
	assert.Equal(t, "sk-test", c.Classifier.OpenAIAPIKey)
	assert.False(t, c.ClassifierEnabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "threshold above one", body: `{"classifier": {"red_threshold": 1.5}}`},
		{name: "unknown policy", body: `{"classifier": {"failure_policy": "sometimes"}}`},
		{name: "unknown embedder", body: `{"classifier": {"embedder": "word2vec"}}`},
		{name: "unknown index", body: `{"classifier": {"index": "faiss"}}`},
		{name: "unknown delivery mode", body: `{"workflow": {"default_delivery_mode": "pigeon"}}`},
		{name: "malformed json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNonNumericThresholdEnvIgnored(t *testing.T) {
	t.Setenv("DISTRESS_RED_THRESHOLD", "high")
	c, err := Load("")
	require.NoError(t, err)
	red, _ := c.Thresholds()
	assert.Equal(t, DEFAULT_RED_THRESHOLD, red)
}

func TestZeroThresholdIsKept(t *testing.T) {
	c, err := Load(writeConfig(t, `{"classifier": {"red_threshold": 0}}`))
	require.NoError(t, err)
	red, yellow := c.Thresholds()
	assert.Equal(t, 0.0, red)
	assert.Equal(t, DEFAULT_YELLOW_THRESHOLD, yellow)

	t.Setenv("DISTRESS_YELLOW_THRESHOLD", "0")
	c, err = Load("")
	require.NoError(t, err)
	_, yellow = c.Thresholds()
	assert.Equal(t, 0.0, yellow)
}
