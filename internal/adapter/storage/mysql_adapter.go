package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sony/gobreaker"

	"github.com/rl1809/review-platform/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

//go:embed schema.sql
var schemaSQL string

type MySQLAdapter struct {
	db *sql.DB
	cb *gobreaker.CircuitBreaker
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	st := gobreaker.Settings{
		Name:        "mysql",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		// a missing row is an answer, not a failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
	}
	return &MySQLAdapter{db: db, cb: gobreaker.NewCircuitBreaker(st)}
}

// EnsureSchema creates the tables if they do not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// read runs a source-of-truth query behind the circuit breaker.
func read[T any](m *MySQLAdapter, fn func() (T, error)) (T, error) {
	v, err := m.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (m *MySQLAdapter) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	return read(m, func() (domain.Shop, error) {
		var s domain.Shop
		err := m.db.QueryRowContext(ctx, `
			SELECT id, name, type_id, images, area, address, x, y, avg_price, sold, comments, score,
			       open_hours, create_time, update_time
			FROM tb_shop WHERE id = ?`, id,
		).Scan(&s.ID, &s.Name, &s.TypeID, &s.Images, &s.Area, &s.Address, &s.X, &s.Y, &s.AvgPrice,
			&s.Sold, &s.Comments, &s.Score, &s.OpenHours, &s.CreatedAt, &s.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shop{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.Shop{}, fmt.Errorf("query shop: %w", err)
		}
		return s, nil
	})
}

func (m *MySQLAdapter) UpdateShop(ctx context.Context, s domain.Shop) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE tb_shop
		SET name = ?, type_id = ?, images = ?, area = ?, address = ?, x = ?, y = ?,
		    avg_price = ?, sold = ?, comments = ?, score = ?, open_hours = ?, update_time = NOW()
		WHERE id = ?`,
		s.Name, s.TypeID, s.Images, s.Area, s.Address, s.X, s.Y,
		s.AvgPrice, s.Sold, s.Comments, s.Score, s.OpenHours, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update shop: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := m.db.QueryRowContext(ctx, `SELECT 1 FROM tb_shop WHERE id = ?`, s.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (m *MySQLAdapter) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	return read(m, func() ([]domain.ShopType, error) {
		rows, err := m.db.QueryContext(ctx, `SELECT id, name, icon, sort FROM tb_shop_type ORDER BY sort ASC`)
		if err != nil {
			return nil, fmt.Errorf("query shop types: %w", err)
		}
		defer rows.Close()

		var types []domain.ShopType
		for rows.Next() {
			var st domain.ShopType
			if err := rows.Scan(&st.ID, &st.Name, &st.Icon, &st.Sort); err != nil {
				return nil, fmt.Errorf("scan shop type: %w", err)
			}
			types = append(types, st)
		}
		return types, rows.Err()
	})
}

func (m *MySQLAdapter) GetSeckillVoucher(ctx context.Context, voucherID int64) (domain.SeckillVoucher, error) {
	return read(m, func() (domain.SeckillVoucher, error) {
		var v domain.SeckillVoucher
		err := m.db.QueryRowContext(ctx, `
			SELECT voucher_id, stock, begin_time, end_time, create_time, update_time
			FROM tb_seckill_voucher WHERE voucher_id = ?`, voucherID,
		).Scan(&v.VoucherID, &v.Stock, &v.BeginTime, &v.EndTime, &v.CreatedAt, &v.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SeckillVoucher{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.SeckillVoucher{}, fmt.Errorf("query seckill voucher: %w", err)
		}
		return v, nil
	})
}

func (m *MySQLAdapter) CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO tb_seckill_voucher (voucher_id, stock, begin_time, end_time)
		VALUES (?, ?, ?, ?)`,
		v.VoucherID, v.Stock, v.BeginTime, v.EndTime,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("%w: seckill voucher %d exists", domain.ErrInvalidArgument, v.VoucherID)
	}
	if err != nil {
		return fmt.Errorf("insert seckill voucher: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateVoucherOrder(ctx context.Context, order domain.VoucherOrder) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	status := order.Status
	if status == 0 {
		status = domain.OrderStatusUnpaid
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tb_voucher_order (id, user_id, voucher_id, status)
		VALUES (?, ?, ?, ?)`,
		order.ID, order.UserID, order.VoucherID, status,
	)
	if isDuplicateEntry(err) {
		return domain.ErrOrderExists
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE tb_seckill_voucher
		SET stock = stock - 1
		WHERE voucher_id = ? AND stock > 0`,
		order.VoucherID,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrInsufficientStock
	}

	return tx.Commit()
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
