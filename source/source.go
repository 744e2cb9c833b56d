package source

import (
	"context"

	"canvasdatasync/utils"
)

// log a convenience wrapper to shorten code lines
var log = &utils.Logger

// RemoteFile is one entry of the sync manifest. Its identity is (Table, Filename);
// URL is a time-limited signed handle that must not be kept across passes.
type RemoteFile struct {
	Table    string
	Filename string
	URL      string
}

// Key maps the file to its object key: <prefix><table>/<filename>.
func (f RemoteFile) Key(prefix string) string {
	return prefix + f.Table + "/" + f.Filename
}

// Manifest the authoritative list of files to mirror, in the order returned by the API.
type Manifest []RemoteFile

// ColumnSpec one column of a remote table as described by the schema document.
type ColumnSpec struct {
	Name string `yaml:"name"`
	// Type the remote type name (text, varchar, integer, datetime, ...)
	Type string `yaml:"type"`
	// Length is 0 when the schema does not give one
	Length      int    `yaml:"length,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// TableSchema a remote table; the column order is the column order of the stored flat file.
type TableSchema struct {
	TableName   string       `yaml:"tableName"`
	Description string       `yaml:"description,omitempty"`
	Columns     []ColumnSpec `yaml:"columns"`
}

// SchemaDocument maps an opaque schema key to its table.
type SchemaDocument map[string]TableSchema

// ManifestClient fetches the remote file list and schema. Each call returns a fresh snapshot.
type ManifestClient interface {

	// GetSyncFileURLs returns the authoritative file list with freshly signed URLs.
	GetSyncFileURLs(ctx context.Context) (Manifest, error)

	// GetSchema returns the current schema document.
	GetSchema(ctx context.Context) (SchemaDocument, error)
}
