package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"datakit/internal/domain"
)

// DatasetStore implements domain.DatasetStore using SQLite.
type DatasetStore struct {
	db *DB
}

// NewDatasetStore creates a new DatasetStore.
func NewDatasetStore(db *DB) *DatasetStore {
	return &DatasetStore{db: db}
}

// ── Dataset CRUD ───────────────────────────────────────────

func (s *DatasetStore) CreateDataset(d *domain.Dataset) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	cols, err := json.Marshal(d.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	_, err = s.db.conn.Exec(
		`INSERT INTO datasets (id, name, columns_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Name, string(cols), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (s *DatasetStore) GetDataset(id string) (*domain.Dataset, error) {
	return s.scanDataset(s.db.conn.QueryRow(
		`SELECT id, name, columns_json, created_at, updated_at
		 FROM datasets WHERE id = ?`, id,
	), id)
}

func (s *DatasetStore) GetDatasetByName(name string) (*domain.Dataset, error) {
	return s.scanDataset(s.db.conn.QueryRow(
		`SELECT id, name, columns_json, created_at, updated_at
		 FROM datasets WHERE name = ?`, name,
	), name)
}

func (s *DatasetStore) scanDataset(row *sql.Row, key string) (*domain.Dataset, error) {
	d := &domain.Dataset{}
	var cols string
	err := row.Scan(&d.ID, &d.Name, &cols, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset not found: %s", key)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cols), &d.Columns); err != nil {
		return nil, fmt.Errorf("unmarshal columns for dataset %s: %w", d.ID, err)
	}
	return d, nil
}

func (s *DatasetStore) ListDatasets() ([]domain.Dataset, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, name, columns_json, created_at, updated_at
		 FROM datasets ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Dataset
	for rows.Next() {
		d := domain.Dataset{}
		var cols string
		if err := rows.Scan(&d.ID, &d.Name, &cols, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cols), &d.Columns); err != nil {
			return nil, fmt.Errorf("unmarshal columns for dataset %s: %w", d.ID, err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *DatasetStore) UpdateDataset(d *domain.Dataset) error {
	d.UpdatedAt = time.Now()

	cols, err := json.Marshal(d.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	_, err = s.db.conn.Exec(
		`UPDATE datasets SET name = ?, columns_json = ?, updated_at = ?
		 WHERE id = ?`,
		d.Name, string(cols), d.UpdatedAt, d.ID,
	)
	return err
}

func (s *DatasetStore) DeleteDataset(id string) error {
	// Delete all rows first, then the dataset
	if _, err := s.db.conn.Exec(`DELETE FROM dataset_rows WHERE dataset_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.conn.Exec(`DELETE FROM datasets WHERE id = ?`, id)
	return err
}

// ── Row CRUD ───────────────────────────────────────────────

func (s *DatasetStore) CreateRow(r *domain.DatasetRow) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	// Auto-assign sort_order to end
	if r.SortOrder == 0 {
		var maxOrder sql.NullInt64
		s.db.conn.QueryRow(
			`SELECT MAX(sort_order) FROM dataset_rows WHERE dataset_id = ?`, r.DatasetID,
		).Scan(&maxOrder)
		if maxOrder.Valid {
			r.SortOrder = int(maxOrder.Int64) + 1
		} else {
			r.SortOrder = 1
		}
	}

	_, err := s.db.conn.Exec(
		`INSERT INTO dataset_rows (id, dataset_id, data_json, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.DatasetID, r.DataJSON, r.SortOrder, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *DatasetStore) ListRows(datasetID string) ([]domain.DatasetRow, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, dataset_id, data_json, sort_order, created_at, updated_at
		 FROM dataset_rows WHERE dataset_id = ? ORDER BY sort_order ASC`, datasetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DatasetRow
	for rows.Next() {
		r := domain.DatasetRow{}
		if err := rows.Scan(&r.ID, &r.DatasetID, &r.DataJSON, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *DatasetStore) DeleteRowsByDataset(datasetID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM dataset_rows WHERE dataset_id = ?`, datasetID)
	return err
}
