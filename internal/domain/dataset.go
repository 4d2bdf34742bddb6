package domain

import "time"

// ColumnType defines the data type of a dataset column.
type ColumnType string

const (
	ColTypeText     ColumnType = "text"
	ColTypeNumber   ColumnType = "number"
	ColTypeBoolean  ColumnType = "boolean"
	ColTypeDatetime ColumnType = "datetime"
)

// DatasetColumn is a single column definition in a dataset.
type DatasetColumn struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset represents a locally stored structured table.
// Sync jobs write their output here; the MCP surface reads from it.
type Dataset struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Columns   []DatasetColumn `json:"columns"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DatasetRow is a single row in a dataset.
// DataJSON stores column values as { "col_id": value }.
type DatasetRow struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"datasetId"`
	DataJSON  string    `json:"dataJson"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DatasetStore manages CRUD for datasets and their rows.
type DatasetStore interface {
	CreateDataset(d *Dataset) error
	GetDataset(id string) (*Dataset, error)
	GetDatasetByName(name string) (*Dataset, error)
	ListDatasets() ([]Dataset, error)
	UpdateDataset(d *Dataset) error
	DeleteDataset(id string) error

	CreateRow(row *DatasetRow) error
	ListRows(datasetID string) ([]DatasetRow, error)
	DeleteRowsByDataset(datasetID string) error
}
