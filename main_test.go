package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		configuration.Use(nil)
	})
	return dir
}

func TestRunEval(t *testing.T) {
	dir := inTempDir(t)
	var stdout, stderr bytes.Buffer

	status := runEval([]string{"3 + 4 * 2", "1 / 0", "5 5", " 7 "}, &stdout, &stderr)

	assert.Equal(t, 1, status)
	assert.Equal(t, "3 + 4 * 2 = 11\n1 / 0 = +Inf\n7 = 7\n", stdout.String())
	assert.Contains(t, stderr.String(), "5 5: SYNTAX ERROR")
	assert.NoFileExists(t, filepath.Join(dir, configPath))
}

func TestRunEvalUsesSettingsFile(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, configPath), []byte("[Calculator]\ndivision_mode=strict\n"), 0644))
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, runEval([]string{"1 / 0"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "division by zero")
}

func TestRunEvalUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, runEval(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage")
}

func TestRunGenCert(t *testing.T) {
	dir := inTempDir(t)
	var stderr bytes.Buffer

	require.Equal(t, 0, runGenCert(nil, &stderr))
	assert.FileExists(t, filepath.Join(dir, "certs", "server.crt"))
	assert.FileExists(t, filepath.Join(dir, "certs", "server.key"))
}

func TestReloadSettings(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, configPath)
	require.NoError(t, os.WriteFile(path, []byte("[Debug]\nlog_file=test.log\nlog_quiz=false\n"), 0644))
	cfg, err := configuration.Load(path)
	require.NoError(t, err)
	configuration.Use(cfg)
	require.NoError(t, logger.Initialize())
	t.Cleanup(logger.Close)
	assert.False(t, logger.GetAreaStatus(logger.AreaQuiz))

	require.NoError(t, os.WriteFile(path, []byte("[Calculator]\ndivision_mode=strict\n[Debug]\nlog_file=test.log\nlog_quiz=true\n"), 0644))
	require.NoError(t, reloadSettings())

	assert.Equal(t, "strict", configuration.GetString("Calculator", "division_mode", ""))
	assert.True(t, logger.GetAreaStatus(logger.AreaQuiz))
}
