package db

import (
	"database/sql"
	"encoding/json"
	"strings"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
	"github.com/kimhsiao/resaletally/internal/uuid"
)

// =====================================================
// Sale Operations
// =====================================================

const selectSales = `SELECT data FROM sales`

// GetSales returns all sales, newest first.
func (r *Repository) GetSales() ([]models.Sale, error) {
	return r.querySales(selectSales+` ORDER BY date DESC, id ASC`, nil)
}

// ListSales returns sales matching filter, newest first.
func (r *Repository) ListSales(filter SalesFilter) ([]models.Sale, error) {
	where, args := filter.Builder().Build()
	query := selectSales
	if where != "" {
		query += " WHERE " + where
	}
	return r.querySales(query+` ORDER BY date DESC, id ASC`, args)
}

func (r *Repository) querySales(query string, args []interface{}) ([]models.Sale, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "query sales", err)
	}
	defer rows.Close()

	sales := make([]models.Sale, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan sale", err)
		}
		var sale models.Sale
		if err := json.Unmarshal([]byte(data), &sale); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "decode sale", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "iterate sales", err)
	}
	return sales, nil
}

// GetSale retrieves a sale by ID.
func (r *Repository) GetSale(id string) (*models.Sale, error) {
	stmt, err := r.PrepareStmt(selectSales + ` WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var data string
	if err := stmt.QueryRow(id).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("sale", id)
		}
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "get sale", err)
	}

	var sale models.Sale
	if err := json.Unmarshal([]byte(data), &sale); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "decode sale", err)
	}
	return &sale, nil
}

// SaveSale stores a sale, assigning an id and date when missing. Saving an
// existing id replaces it.
func (r *Repository) SaveSale(sale *models.Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.New()
	}
	if sale.Date.IsZero() {
		sale.Date = r.now().UTC()
	}

	if err := r.writeSale(r.db, sale); err != nil {
		return err
	}
	r.emit(models.CollectionSales, models.OperationCreate, sale.ID)
	return nil
}

// UpdateSale applies patch to the stored sale. The id cannot change.
func (r *Repository) UpdateSale(id string, patch func(*models.Sale) error) (*models.Sale, error) {
	r.writeMu.Lock()
	sale, err := r.GetSale(id)
	if err != nil {
		r.writeMu.Unlock()
		return nil, err
	}
	if err := patch(sale); err != nil {
		r.writeMu.Unlock()
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "patch sale", err)
	}
	sale.ID = id
	err = r.writeSale(r.db, sale)
	r.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	r.emit(models.CollectionSales, models.OperationUpdate, id)
	return sale, nil
}

// DeleteSale removes a sale. Deleting a missing id is not an error.
func (r *Repository) DeleteSale(id string) error {
	if _, err := r.db.Exec(`DELETE FROM sales WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "delete sale", err)
	}
	r.emit(models.CollectionSales, models.OperationDelete, id)
	return nil
}

func (r *Repository) writeSale(ex execer, sale *models.Sale) error {
	data, err := json.Marshal(sale)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "encode sale", err)
	}

	query := `
	INSERT INTO sales (id, date, platform, product_name, search_text, data)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		date = excluded.date,
		platform = excluded.platform,
		product_name = excluded.product_name,
		search_text = excluded.search_text,
		data = excluded.data
	`
	_, err = ex.Exec(query, sale.ID, sale.Date.UnixMilli(), salePlatform(sale),
		sale.ProductName, saleSearchText(sale), string(data))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "write sale", err)
	}
	return nil
}

// replaceSales swaps the whole sales table inside one transaction.
func (r *Repository) replaceSales(sales []models.Sale) error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin sales import", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sales`); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "clear sales", err)
	}
	for i := range sales {
		if err := r.writeSale(tx, &sales[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit sales import", err)
	}
	return nil
}

// salePlatform mirrors the web client, which treats an empty platform as mercari.
func salePlatform(sale *models.Sale) string {
	if sale.Platform == "" {
		return "mercari"
	}
	return sale.Platform
}

func saleSearchText(sale *models.Sale) string {
	parts := []string{sale.ProductName}
	for _, m := range sale.Materials {
		parts = append(parts, m.Name)
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}
