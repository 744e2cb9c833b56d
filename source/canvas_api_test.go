package source

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syncResponse = `{
	"incomplete": [],
	"files": [
		{"table": "account_dim", "filename": "0-part.gz", "url": "https://files.example.com/1?sig=a", "partial": false},
		{"table": "user_dim", "filename": "1-part.gz", "url": "https://files.example.com/2?sig=b", "partial": false}
	]
}`

const schemaResponse = `{
	"version": "5.2.3",
	"schema": {
		"account": {
			"tableName": "account_dim",
			"description": "Accounts",
			"columns": [
				{"name": "id", "type": "bigint", "description": "Surrogate key"},
				{"name": "name", "type": "varchar", "length": 256},
				{"name": "created_at", "type": "datetime"}
			]
		},
		"user": {
			"tableName": "user_dim",
			"columns": [
				{"name": "id", "type": "bigint"}
			]
		}
	}
}`

func newTestAPI(t *testing.T, handler http.HandlerFunc) *CanvasDataAPI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	api, err := NewCanvasDataAPI(server.URL, "key", "secret", server.Client())
	require.NoError(t, err)
	api.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return api
}

func TestGetSyncFileURLs(t *testing.T) {
	var authorization, date, path string
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		date = r.Header.Get("Date")
		path = r.URL.Path
		_, _ = w.Write([]byte(syncResponse))
	})

	manifest, err := api.GetSyncFileURLs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, syncPath, path)
	assert.Equal(t, "Fri, 01 Mar 2024 10:00:00 GMT", date)
	assert.True(t, strings.HasPrefix(authorization, "HMACAuth key:"), authorization)

	require.Len(t, manifest, 2)
	assert.Equal(t, RemoteFile{Table: "account_dim", Filename: "0-part.gz", URL: "https://files.example.com/1?sig=a"},
		manifest[0])
	assert.Equal(t, "raw_files/user_dim/1-part.gz", manifest[1].Key("raw_files/"))
}

func TestGetSchema(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, schemaPath, r.URL.Path)
		_, _ = w.Write([]byte(schemaResponse))
	})

	schema, err := api.GetSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, schema, 2)

	account := schema["account"]
	assert.Equal(t, "account_dim", account.TableName)
	assert.Equal(t, "Accounts", account.Description)
	assert.Equal(t, []ColumnSpec{
		{Name: "id", Type: "bigint", Description: "Surrogate key"},
		{Name: "name", Type: "varchar", Length: 256},
		{Name: "created_at", Type: "datetime"},
	}, account.Columns, "column order is preserved")

	assert.Equal(t, "", schema["user"].Description)
}

func TestCanvasDataAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"bad signature"}`, wantErr: "status 401"},
		{name: "server error", status: http.StatusBadGateway, body: "", wantErr: "status 502"},
		{name: "missing files member", status: http.StatusOK, body: `{"incomplete": []}`, wantErr: "'files' not found"},
		{name: "file without url", status: http.StatusOK, body: `{"files": [{"table": "t", "filename": "a.gz"}]}`, wantErr: "'url'"},
		{name: "malformed json", status: http.StatusOK, body: `{"files": [`, wantErr: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := api.GetSyncFileURLs(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSign(t *testing.T) {
	api, err := NewCanvasDataAPI("https://api.inshosteddata.com", "key", "secret", nil)
	require.NoError(t, err)

	date := "Fri, 01 Mar 2024 10:00:00 GMT"
	message := "GET\napi.inshosteddata.com\n\n\n/api/schema/latest\n\n" + date + "\nsecret"
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(message))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if result := api.sign("GET", "api.inshosteddata.com", "/api/schema/latest", nil, date); result != expected {
		t.Errorf("sign() = %v; want %v", result, expected)
	}
}

func TestNewCanvasDataAPIInvalidURL(t *testing.T) {
	_, err := NewCanvasDataAPI("not a url", "key", "secret", nil)
	assert.Error(t, err)
}

func TestParseColumnLength(t *testing.T) {
	tests := []struct {
		name     string
		column   map[string]any
		expected int
		wantErr  bool
	}{
		{name: "absent", column: map[string]any{}, expected: 0},
		{name: "number", column: map[string]any{"length": float64(64)}, expected: 64},
		{name: "numeric string", column: map[string]any{"length": "128"}, expected: 128},
		{name: "garbage", column: map[string]any{"length": "long"}, wantErr: true},
		{name: "wrong type", column: map[string]any{"length": true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := optionalInt(tt.column, "length")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if result != tt.expected {
				t.Errorf("optionalInt(%v) = %v; want %v", tt.column, result, tt.expected)
			}
		})
	}
}
