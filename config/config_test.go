package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envMap map[string]string

func (e envMap) getenv(name string) string {
	return e[name]
}

type fakeSecrets struct {
	values map[string]string
	calls  int
}

func (f *fakeSecrets) GetSecretString(_ context.Context, secretID string) (string, error) {
	f.calls++
	v, ok := f.values[secretID]
	if !ok {
		return "", errors.New("ResourceNotFoundException")
	}
	return v, nil
}

func baseEnv() envMap {
	return envMap{
		"s3_bucket":           "canvas-bucket",
		"sns_topic":           "arn:aws:sns:us-east-1:123456789012:canvas",
		"fetch_function_name": "fetch-canvas-data-file",
		"api_key":             "key",
		"api_secret":          "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), LoadOptions{Getenv: baseEnv().getenv, RequireFetchFunction: true})
	require.NoError(t, err)

	assert.Equal(t, "canvas-bucket", cfg.S3Bucket)
	assert.Equal(t, DefaultPrefix, cfg.S3Prefix)
	assert.Equal(t, DefaultDatabase, cfg.DatabaseName)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, 15*time.Minute, cfg.PassTimeout)
	assert.Equal(t, 4, cfg.LocalWorkers)
	assert.Equal(t, "@every 6h", cfg.Schedule)
}

func TestLoadDryRun(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected bool
	}{
		{name: "lower case", value: "true", expected: true},
		{name: "mixed case", value: "TrUe", expected: true},
		{name: "false", value: "false", expected: false},
		{name: "empty", value: "", expected: false},
		{name: "other truthy spellings are not accepted", value: "1", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			env["dry_run"] = tt.value
			cfg, err := Load(context.Background(), LoadOptions{Getenv: env.getenv})
			require.NoError(t, err)
			if cfg.DryRun != tt.expected {
				t.Errorf("DryRun for %q = %v; want %v", tt.value, cfg.DryRun, tt.expected)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	tests := []struct {
		name    string
		drop    string
		require bool
	}{
		{name: "bucket", drop: "s3_bucket"},
		{name: "topic", drop: "sns_topic"},
		{name: "fetch function when dispatching through Lambda", drop: "fetch_function_name", require: true},
		{name: "api key", drop: "api_key"},
		{name: "api secret", drop: "api_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			delete(env, tt.drop)
			_, err := Load(context.Background(), LoadOptions{Getenv: env.getenv, RequireFetchFunction: tt.require})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissing)
			assert.Contains(t, err.Error(), tt.drop)
		})
	}

	t.Run("fetch function is optional for in-process dispatch", func(t *testing.T) {
		env := baseEnv()
		delete(env, "fetch_function_name")
		_, err := Load(context.Background(), LoadOptions{Getenv: env.getenv})
		assert.NoError(t, err)
	})
}

func TestLoadCredentialsFromSecret(t *testing.T) {
	env := baseEnv()
	delete(env, "api_key")
	delete(env, "api_secret")
	env["api_sm_id"] = "canvas/api"

	t.Run("secret wins", func(t *testing.T) {
		secrets := &fakeSecrets{values: map[string]string{
			"canvas/api": `{"api_key": "sm-key", "api_secret": "sm-secret"}`,
		}}
		cfg, err := Load(context.Background(), LoadOptions{Getenv: env.getenv, Secrets: secrets})
		require.NoError(t, err)
		assert.Equal(t, "sm-key", cfg.APIKey)
		assert.Equal(t, "sm-secret", cfg.APISecret)
		assert.Equal(t, 1, secrets.calls)
	})

	t.Run("malformed secret", func(t *testing.T) {
		secrets := &fakeSecrets{values: map[string]string{"canvas/api": `not json`}}
		_, err := Load(context.Background(), LoadOptions{Getenv: env.getenv, Secrets: secrets})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed secret")
	})

	t.Run("secret without a key pair", func(t *testing.T) {
		secrets := &fakeSecrets{values: map[string]string{"canvas/api": `{"api_key": "only-key"}`}}
		_, err := Load(context.Background(), LoadOptions{Getenv: env.getenv, Secrets: secrets})
		require.Error(t, err)
	})

	t.Run("unknown secret", func(t *testing.T) {
		secrets := &fakeSecrets{values: map[string]string{}}
		_, err := Load(context.Background(), LoadOptions{Getenv: env.getenv, Secrets: secrets})
		require.Error(t, err)
	})
}

func TestLoadFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "canvasdata.yaml")
	content := []byte(`
s3_bucket: file-bucket
s3_prefix: mirror
database_name: canvas_file
pass_timeout: 5m
local_workers: 8
fetch_rate: 2.5
`)
	require.NoError(t, os.WriteFile(file, content, 0o600))

	env := baseEnv()
	env["config_file"] = file

	cfg, err := Load(context.Background(), LoadOptions{
		Getenv:    env.getenv,
		Overrides: &Config{DatabaseName: "canvas_flag", DryRun: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "file-bucket", cfg.S3Bucket, "the file wins over the environment")
	assert.Equal(t, "mirror/", cfg.S3Prefix, "the prefix always ends with a slash")
	assert.Equal(t, "canvas_flag", cfg.DatabaseName, "flags win over the file")
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 5*time.Minute, cfg.PassTimeout)
	assert.Equal(t, 8, cfg.LocalWorkers)
	assert.InDelta(t, 2.5, cfg.FetchRate, 0.0001)
}

func TestLoadInvalidNumbers(t *testing.T) {
	for _, name := range []string{"pass_timeout", "local_workers", "local_queue_size", "fetch_rate"} {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			env[name] = "not-a-number"
			_, err := Load(context.Background(), LoadOptions{Getenv: env.getenv})
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}
