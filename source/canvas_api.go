package source

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bcicen/jstream"
	"go.uber.org/zap"
)

const (
	syncPath   = "/api/account/self/file/sync"
	schemaPath = "/api/schema/latest"
)

// CanvasDataAPI is a ManifestClient talking to the Canvas Data REST API,
// authenticated with a pre-shared (api_key, api_secret) pair.
type CanvasDataAPI struct {
	baseURL   *url.URL
	apiKey    string
	apiSecret string
	client    *http.Client
	// now is replaced in tests to get stable signatures
	now func() time.Time
}

// NewCanvasDataAPI creates a client for the API at baseURL (for example https://api.inshosteddata.com).
func NewCanvasDataAPI(baseURL string, apiKey string, apiSecret string, client *http.Client) (*CanvasDataAPI, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid Canvas Data API url '%s': %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid Canvas Data API url '%s': scheme and host are required", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &CanvasDataAPI{baseURL: u, apiKey: apiKey, apiSecret: apiSecret, client: client, now: time.Now}, nil
}

// GetSyncFileURLs returns every file of the latest complete dump for every table.
func (a *CanvasDataAPI) GetSyncFileURLs(ctx context.Context) (ret Manifest, err error) {
	body, err := a.get(ctx, syncPath, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(body)

	ret = make(Manifest, 0)
	err = decodeMember(body, "files", func(value any) error {
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected an array of files, received %T", value)
		}
		for i, item := range items {
			file, err := parseRemoteFile(item)
			if err != nil {
				return fmt.Errorf("file #%d: %w", i, err)
			}
			ret = append(ret, file)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse the sync file list: %w", err)
	}
	log.Debug("Retrieved the sync file list", zap.Int("files", len(ret)))
	return ret, nil
}

// GetSchema returns the latest schema document.
func (a *CanvasDataAPI) GetSchema(ctx context.Context) (ret SchemaDocument, err error) {
	body, err := a.get(ctx, schemaPath, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(body)

	ret = make(SchemaDocument)
	err = decodeMember(body, "schema", func(value any) error {
		tables, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected a schema object, received %T", value)
		}
		for key, raw := range tables {
			table, err := parseTableSchema(raw)
			if err != nil {
				return fmt.Errorf("schema '%s': %w", key, err)
			}
			ret[key] = table
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse the schema: %w", err)
	}
	log.Debug("Retrieved the schema", zap.Int("tables", len(ret)))
	return ret, nil
}

// get performs a signed GET request and returns the body of a 2xx response.
func (a *CanvasDataAPI) get(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	u := *a.baseURL
	u.Path = a.baseURL.Path + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	date := a.now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)
	req.Header.Set("Authorization",
		fmt.Sprintf("HMACAuth %s:%s", a.apiKey, a.sign(http.MethodGet, u.Host, u.Path, query, date)))

	log.Trace("Canvas Data API request", zap.String("url", u.String()))
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer closeBody(resp.Body)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("request %s failed with status %d: %s", path, resp.StatusCode,
			strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

// sign computes the HMACAuth signature: base64(HMAC-SHA256(secret, message)) where the message is
// method, host, content type, content MD5, path, sorted query, date and the secret, joined by newlines.
func (a *CanvasDataAPI) sign(method string, host string, path string, query url.Values, date string) string {
	params := make([]string, 0, len(query))
	for k, values := range query {
		for _, v := range values {
			params = append(params, k+"="+v)
		}
	}
	sort.Strings(params)

	message := strings.Join([]string{
		method,
		host,
		"", // content type, always empty for GET
		"", // content MD5, always empty for GET
		path,
		strings.Join(params, "&"),
		date,
		a.apiSecret,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// decodeMember streams the top-level JSON object and calls handle with the value of the named member.
// A missing member is an error.
func decodeMember(r io.Reader, member string, handle func(value any) error) error {
	decoder := jstream.NewDecoder(r, 1).EmitKV()
	found := false
	for mv := range decoder.Stream() {
		kv, ok := mv.Value.(jstream.KV)
		if !ok || kv.Key != member {
			continue
		}
		found = true
		if err := handle(kv.Value); err != nil {
			return err
		}
	}
	if err := decoder.Err(); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("member '%s' not found in the response", member)
	}
	return nil
}

func parseRemoteFile(item any) (RemoteFile, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return RemoteFile{}, fmt.Errorf("expected an object, received %T", item)
	}
	var file RemoteFile
	var err error
	if file.Table, err = requiredString(m, "table"); err != nil {
		return RemoteFile{}, err
	}
	if file.Filename, err = requiredString(m, "filename"); err != nil {
		return RemoteFile{}, err
	}
	if file.URL, err = requiredString(m, "url"); err != nil {
		return RemoteFile{}, err
	}
	return file, nil
}

func parseTableSchema(raw any) (TableSchema, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return TableSchema{}, fmt.Errorf("expected an object, received %T", raw)
	}
	var table TableSchema
	var err error
	if table.TableName, err = requiredString(m, "tableName"); err != nil {
		return TableSchema{}, err
	}
	table.Description, _ = m["description"].(string)

	columns, ok := m["columns"].([]any)
	if !ok {
		return TableSchema{}, fmt.Errorf("table '%s' has no column list", table.TableName)
	}
	table.Columns = make([]ColumnSpec, 0, len(columns))
	for i, c := range columns {
		cm, ok := c.(map[string]any)
		if !ok {
			return TableSchema{}, fmt.Errorf("table '%s' column #%d: expected an object", table.TableName, i)
		}
		var column ColumnSpec
		if column.Name, err = requiredString(cm, "name"); err != nil {
			return TableSchema{}, fmt.Errorf("table '%s' column #%d: %w", table.TableName, i, err)
		}
		if column.Type, err = requiredString(cm, "type"); err != nil {
			return TableSchema{}, fmt.Errorf("table '%s' column '%s': %w", table.TableName, column.Name, err)
		}
		column.Description, _ = cm["description"].(string)
		if column.Length, err = optionalInt(cm, "length"); err != nil {
			return TableSchema{}, fmt.Errorf("table '%s' column '%s': %w", table.TableName, column.Name, err)
		}
		table.Columns = append(table.Columns, column)
	}
	return table, nil
}

func requiredString(m map[string]any, name string) (string, error) {
	v, ok := m[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("'%s' is missing or not a string", name)
	}
	return v, nil
}

// optionalInt accepts JSON numbers and numeric strings; absent or null gives 0.
func optionalInt(m map[string]any, name string) (int, error) {
	switch v := m[name].(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case string:
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("'%s' is not a number: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("'%s' has unexpected type %T", name, v)
	}
}

func closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		log.Warn("Failed to close the response body", zap.Error(err))
	}
}
