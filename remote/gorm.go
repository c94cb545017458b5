package remote

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/printflowhq/printshop_backend/config"
	"github.com/printflowhq/printshop_backend/models"
)

// defaultSequenceStart is the first document number handed out for a kind
// that has never been numbered. Print shops prefer numbers that do not look
// like row counts.
const defaultSequenceStart = 1000

// GormStore is the MySQL-backed central store.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
	start  int64
}

func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	start := int64(defaultSequenceStart)
	if v := strings.TrimSpace(os.Getenv("SEQUENCE_START")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			start = n
		}
	}
	return &GormStore{db: db, logger: logger, start: start}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func (s *GormStore) SelectByID(ctx context.Context, kind models.RecordKind, id string) (models.Record, error) {
	db := s.db.WithContext(ctx)
	take := func(dest any) error {
		return db.Where("id = ?", id).Take(dest).Error
	}

	var (
		rec models.Record
		err error
	)
	switch kind {
	case models.RecordKindOrder:
		var order models.Order
		if err = take(&order); err == nil {
			rec = models.Record{Kind: kind, Order: &order}
		}
	case models.RecordKindCustomer:
		var customer models.Customer
		if err = take(&customer); err == nil {
			rec = models.Record{Kind: kind, Customer: &customer}
		}
	case models.RecordKindInvoice:
		var invoice models.Invoice
		if err = take(&invoice); err == nil {
			rec = models.Record{Kind: kind, Invoice: &invoice}
		}
	default:
		return models.Record{}, errors.New("unknown record kind")
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Record{}, ErrNotFound
		}
		return models.Record{}, err
	}
	return rec, nil
}

func (s *GormStore) Insert(ctx context.Context, rec models.Record) error {
	db := s.db.WithContext(ctx)
	switch rec.Kind {
	case models.RecordKindOrder:
		return db.Create(rec.Order).Error
	case models.RecordKindCustomer:
		return db.Create(rec.Customer).Error
	case models.RecordKindInvoice:
		return db.Create(rec.Invoice).Error
	}
	return errors.New("unknown record kind")
}

// numberColumn is the per-kind document-number column, excluded from every
// update so re-uploads cannot clobber an assigned number with a local nil.
func numberColumn(kind models.RecordKind) string {
	switch kind {
	case models.RecordKindOrder:
		return "order_number"
	case models.RecordKindCustomer:
		return "customer_number"
	case models.RecordKindInvoice:
		return "invoice_number"
	}
	return ""
}

func (s *GormStore) UpdateByID(ctx context.Context, rec models.Record) error {
	env := rec.Envelope()
	if env == nil {
		return errors.New("record has no envelope")
	}
	db := s.db.WithContext(ctx)
	update := func(model any, payload any) error {
		res := db.Model(model).
			Where("id = ? AND shop_id = ?", env.ID, env.ShopId).
			Select("*").
			Omit("id", "shop_id", "created_at", numberColumn(rec.Kind)).
			Updates(payload)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}
	switch rec.Kind {
	case models.RecordKindOrder:
		return update(&models.Order{}, rec.Order)
	case models.RecordKindCustomer:
		return update(&models.Customer{}, rec.Customer)
	case models.RecordKindInvoice:
		return update(&models.Invoice{}, rec.Invoice)
	}
	return errors.New("unknown record kind")
}

func (s *GormStore) DeleteByID(ctx context.Context, kind models.RecordKind, id string) error {
	db := s.db.WithContext(ctx)
	switch kind {
	case models.RecordKindOrder:
		return db.Where("id = ?", id).Delete(&models.Order{}).Error
	case models.RecordKindCustomer:
		return db.Where("id = ?", id).Delete(&models.Customer{}).Error
	case models.RecordKindInvoice:
		return db.Where("id = ?", id).Delete(&models.Invoice{}).Error
	}
	return errors.New("unknown record kind")
}

// NextSequence advances the per-(shop, kind) counter with a single UPDATE;
// LAST_INSERT_ID makes the assigned value visible on this connection
// without a read-then-write window. The sequence row is created on demand,
// tolerating the create race via the unique index.
func (s *GormStore) NextSequence(ctx context.Context, shopId string, kind models.RecordKind) (int64, error) {
	advance := func(tx *gorm.DB) (int64, bool, error) {
		res := tx.Exec(
			"UPDATE document_sequences SET next_value = LAST_INSERT_ID(next_value + 1) WHERE shop_id = ? AND kind = ?",
			shopId, kind,
		)
		if res.Error != nil {
			return 0, false, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, false, nil
		}
		var next int64
		if err := tx.Raw("SELECT LAST_INSERT_ID()").Scan(&next).Error; err != nil {
			return 0, false, err
		}
		return next, true, nil
	}

	var out int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, ok, err := advance(tx)
		if err != nil {
			return err
		}
		if ok {
			out = next
			return nil
		}

		seq := models.DocumentSequence{ShopId: shopId, Kind: kind, NextValue: s.start}
		if err := tx.Create(&seq).Error; err != nil {
			if !isDuplicateKeyErr(err) {
				return err
			}
			// Lost the creation race; the row exists now.
			next, ok, err = advance(tx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("document sequence row missing after duplicate-key create")
			}
			out = next
			return nil
		}
		out = seq.NextValue
		return nil
	})
	return out, err
}

func (s *GormStore) FetchModifiedSince(ctx context.Context, shopId string, kind models.RecordKind, since time.Time) ([]models.Record, error) {
	db := s.db.WithContext(ctx)
	out := []models.Record{}

	appendValid := func(rec models.Record) {
		// Rows are validated once at this boundary; malformed rows are
		// dropped with a log instead of leaking into the local store.
		if err := rec.Validate(); err != nil {
			if s.logger != nil {
				config.LogError(s.logger, "remote/gorm.go", "FetchModifiedSince", "invalid remote row", rec.Envelope(), err)
			}
			return
		}
		out = append(out, rec)
	}

	where := func(q *gorm.DB) *gorm.DB {
		return q.Where("shop_id = ? AND last_modified_at >= ?", shopId, since)
	}

	switch kind {
	case models.RecordKindOrder:
		var rows []models.Order
		if err := where(db.Model(&models.Order{})).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			appendValid(models.Record{Kind: kind, Order: &rows[i]})
		}
	case models.RecordKindCustomer:
		var rows []models.Customer
		if err := where(db.Model(&models.Customer{})).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			appendValid(models.Record{Kind: kind, Customer: &rows[i]})
		}
	case models.RecordKindInvoice:
		var rows []models.Invoice
		if err := where(db.Model(&models.Invoice{})).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			appendValid(models.Record{Kind: kind, Invoice: &rows[i]})
		}
	default:
		return nil, errors.New("unknown record kind")
	}
	return out, nil
}
