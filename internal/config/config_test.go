package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPolicy() PolicyConfig {
	return PolicyConfig{
		QuizUnlockVideoProgress:     25,
		CertificateMinScore:         90,
		CertificateMinVideoProgress: 100,
		VideoCompletionPercent:      90,
		QuizWeight:                  0.5,
		AssignmentWeight:            0.5,
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	assert.NoError(t, validPolicy().Validate())

	p := validPolicy()
	p.CertificateMinScore = 101
	assert.Error(t, p.Validate())

	p = validPolicy()
	p.QuizUnlockVideoProgress = -1
	assert.Error(t, p.Validate())

	p = validPolicy()
	p.QuizWeight, p.AssignmentWeight = 0, 0
	assert.Error(t, p.Validate())

	p = validPolicy()
	p.QuizWeight, p.AssignmentWeight = 1, 0
	assert.NoError(t, p.Validate())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, `
server:
  port: "9090"
storage:
  type: local
  local_path: `+uploads+`
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 72*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 25.0, cfg.Policy.QuizUnlockVideoProgress)
	assert.Equal(t, 90.0, cfg.Policy.CertificateMinScore)
	assert.Equal(t, 0.5, cfg.Policy.QuizWeight)
	assert.Equal(t, 5*time.Second, cfg.Payment.ConfirmTimeout)
	assert.Equal(t, 50, cfg.Ambassador.PointsPerSignup)
	assert.Equal(t, 5, cfg.Cleanup.MaxAttempts)
	assert.Equal(t, "logs/app.log", cfg.Log.File)
	assert.DirExists(t, uploads)
}

func TestLoadConfig_RejectsShortSecretInRelease(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: release
jwt:
  secret: short
storage:
  local_path: `+t.TempDir()+`
`)
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsInvalidPolicy(t *testing.T) {
	dir := writeConfig(t, `
policy:
  certificate_min_score: 120
storage:
  local_path: `+t.TempDir()+`
`)
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
