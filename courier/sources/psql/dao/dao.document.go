package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courier/courier/sources/psql/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sqliteClockLayout = "2006-01-02 15:04:05.000"

// DocumentDAO is row-level access to the documents table. Methods taking a
// *gorm.DB run on whatever transaction the caller passes.
type DocumentDAO struct {
	DB *gorm.DB
}

func NewDocumentDAO(db *gorm.DB) *DocumentDAO {
	return &DocumentDAO{DB: db}
}

func (dao *DocumentDAO) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return dao.DB.WithContext(ctx).Transaction(fn)
}

// Now reads the database clock.
func (dao *DocumentDAO) Now(tx *gorm.DB) (time.Time, error) {
	if tx.Dialector.Name() == "postgres" {
		var now time.Time
		if err := tx.Raw("SELECT now()").Row().Scan(&now); err != nil {
			return time.Time{}, err
		}
		return now.UTC(), nil
	}
	var raw string
	if err := tx.Raw("SELECT strftime('%Y-%m-%d %H:%M:%f', 'now')").Row().Scan(&raw); err != nil {
		return time.Time{}, err
	}
	return time.Parse(sqliteClockLayout, raw)
}

// Lock reads a row for update; nil, nil when it does not exist.
func (dao *DocumentDAO) Lock(tx *gorm.DB, path string) (*models.Document, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var doc models.Document
	err := q.Where("path = ?", path).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (dao *DocumentDAO) Insert(tx *gorm.DB, doc *models.Document) error {
	return tx.Create(doc).Error
}

// InsertIfAbsent creates doc unless its path is taken, leaving any
// existing row untouched. Callers follow it with Lock so there is always a
// row to hold.
func (dao *DocumentDAO) InsertIfAbsent(tx *gorm.DB, doc *models.Document) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoNothing: true,
	}).Create(doc).Error
}

// Upsert inserts doc or, if the path exists, replaces its data.
func (dao *DocumentDAO) Upsert(tx *gorm.DB, doc *models.Document) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "update_time"}),
	}).Create(doc).Error
}

func (dao *DocumentDAO) Delete(ctx context.Context, path string) (int64, error) {
	res := dao.DB.WithContext(ctx).Where("path = ?", path).Delete(&models.Document{})
	return res.RowsAffected, res.Error
}

func (dao *DocumentDAO) Get(ctx context.Context, path string) (*models.Document, error) {
	var doc models.Document
	err := dao.DB.WithContext(ctx).Where("path = ?", path).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns the documents of a collection. With orderBy set, documents
// lacking that field are skipped and the rest ordered by its value.
func (dao *DocumentDAO) List(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]models.Document, error) {
	q := dao.DB.WithContext(ctx).Where("collection = ?", collection)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if orderBy != "" {
		field := jsonField(dao.DB.Dialector.Name())
		q = q.Where(field+" IS NOT NULL", orderBy).
			Order(clause.OrderBy{Expression: clause.Expr{
				SQL:                fmt.Sprintf("%s %s, doc_id %s", field, dir, dir),
				Vars:               []any{orderBy},
				WithoutParentheses: true,
			}})
	} else {
		q = q.Order("doc_id " + dir)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var docs []models.Document
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func jsonField(dialect string) string {
	if dialect == "postgres" {
		return `(data->>?) COLLATE "C"`
	}
	return "json_extract(data, '$.' || ?)"
}
