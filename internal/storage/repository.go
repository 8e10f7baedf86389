package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"deals/internal/core"
)

const dealColumns = `
	d.id, d.stock_number, d.deal_date, d.last_name,
	d.manager_id, m.name AS manager_name,
	d.reserve, d.vsc, d.gap, d.tw, d.tricare, d."key",
	d.version, d.updated_by, d.sync_status, d.created_at, d.updated_at`

const dealSelect = `SELECT` + dealColumns + `
	FROM deals d
	JOIN managers m ON m.id = d.manager_id`

const dealOrder = ` ORDER BY d.deal_date DESC, d.id DESC`

type SQLiteRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations on their own connection before the pool opens
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListDeals returns deals whose stock number, date text or last name
// contains query, ignoring case. Only an empty query returns every deal;
// whitespace is matched literally.
func (r *SQLiteRepository) ListDeals(ctx context.Context, query string) ([]core.Deal, error) {
	q := dealSelect
	var args []any
	if query != "" {
		pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
		q += ` WHERE lower(d.stock_number) LIKE ? ESCAPE '\'
			OR d.deal_date LIKE ? ESCAPE '\'
			OR lower(d.last_name) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern, pattern)
	}
	q += dealOrder

	var rows []dealRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return toDeals(rows)
}

// FilterDeals returns the deals selected by a report filter.
func (r *SQLiteRepository) FilterDeals(ctx context.Context, f core.ReportFilter) ([]core.Deal, error) {
	var (
		conds []string
		args  []any
	)
	if !f.Start.IsEmpty() {
		conds = append(conds, "d.deal_date >= ?")
		args = append(args, f.Start.String())
	}
	if !f.End.IsEmpty() {
		conds = append(conds, "d.deal_date <= ?")
		args = append(args, f.End.String())
	}
	if len(f.Managers) > 0 {
		conds = append(conds, "d.manager_id IN (?)")
		args = append(args, f.Managers)
	}

	q := dealSelect
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += dealOrder

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("expand filter query: %w", err)
	}

	var rows []dealRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("filter deals: %w", err)
	}
	return toDeals(rows)
}

func (r *SQLiteRepository) GetDeal(ctx context.Context, id int64) (core.Deal, error) {
	return r.getDeal(ctx, r.db, id)
}

func (r *SQLiteRepository) getDeal(ctx context.Context, q sqlx.QueryerContext, id int64) (core.Deal, error) {
	var row dealRow
	if err := sqlx.GetContext(ctx, q, &row, dealSelect+" WHERE d.id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Deal{}, fmt.Errorf("deal %d: %w", id, core.ErrNotFound)
		}
		return core.Deal{}, fmt.Errorf("get deal %d: %w", id, err)
	}
	return row.toDomain()
}

// CreateDeal inserts d and returns the stored deal with its id.
func (r *SQLiteRepository) CreateDeal(ctx context.Context, d core.Deal, actor string) (core.Deal, error) {
	var created core.Deal
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		now := r.now().Format(time.RFC3339)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO deals (
				stock_number, deal_date, last_name, manager_id,
				reserve, vsc, gap, tw, tricare, "key",
				version, updated_by, sync_status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
			d.StockNumber, d.DealDate.String(), d.LastName, d.Manager.ID,
			d.Reserve.String(), d.VSC.String(), d.GAP.String(), d.TW.String(), d.Tricare.String(), d.Key.String(),
			actor, string(core.SyncPending), now, now)
		if err != nil {
			return fmt.Errorf("insert deal: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		created, err = r.getDeal(ctx, tx, id)
		return err
	})
	if err != nil {
		return core.Deal{}, fmt.Errorf("create deal: %w", err)
	}

	slog.InfoContext(ctx, "Deal saved to SQLite",
		"id", created.ID,
		"stock_number", created.StockNumber,
		"deal_date", created.DealDate.String(),
		"manager_id", created.Manager.ID)

	return created, nil
}

// UpdateDeal overwrites the deal with d.ID, bumps its version and marks it
// pending for sync. Concurrent writers follow last-write-wins.
func (r *SQLiteRepository) UpdateDeal(ctx context.Context, d core.Deal, actor string) (core.Deal, error) {
	var updated core.Deal
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE deals SET
				stock_number = ?, deal_date = ?, last_name = ?, manager_id = ?,
				reserve = ?, vsc = ?, gap = ?, tw = ?, tricare = ?, "key" = ?,
				version = version + 1, updated_by = ?, sync_status = ?, updated_at = ?
			WHERE id = ?`,
			d.StockNumber, d.DealDate.String(), d.LastName, d.Manager.ID,
			d.Reserve.String(), d.VSC.String(), d.GAP.String(), d.TW.String(), d.Tricare.String(), d.Key.String(),
			actor, string(core.SyncPending), r.now().Format(time.RFC3339), d.ID)
		if err != nil {
			return fmt.Errorf("update deal: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("deal %d: %w", d.ID, core.ErrNotFound)
		}
		updated, err = r.getDeal(ctx, tx, d.ID)
		return err
	})
	if err != nil {
		return core.Deal{}, err
	}

	slog.InfoContext(ctx, "Deal updated in SQLite", "id", updated.ID, "version", updated.Version)
	return updated, nil
}

// DeleteDeal removes the deal and returns its last stored state.
func (r *SQLiteRepository) DeleteDeal(ctx context.Context, id int64) (core.Deal, error) {
	var deleted core.Deal
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		deleted, err = r.getDeal(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM deals WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete deal: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Deal{}, err
	}

	slog.InfoContext(ctx, "Deal deleted from SQLite", "id", id, "stock_number", deleted.StockNumber)
	return deleted, nil
}

// PendingSyncDeals returns deals not yet mirrored, oldest change first.
func (r *SQLiteRepository) PendingSyncDeals(ctx context.Context, limit int) ([]core.Deal, error) {
	var rows []dealRow
	err := r.db.SelectContext(ctx, &rows,
		dealSelect+` WHERE d.sync_status IN (?, ?) ORDER BY d.updated_at ASC, d.id ASC LIMIT ?`,
		string(core.SyncPending), string(core.SyncError), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync deals: %w", err)
	}
	return toDeals(rows)
}

// MarkSynced marks the deal synced if it has not changed since version.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deals SET sync_status = ? WHERE id = ? AND version = ?`,
		string(core.SyncSynced), id, version)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	slog.InfoContext(ctx, "Deal marked as synced", "id", id, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE deals SET sync_status = ? WHERE id = ?`, string(core.SyncError), id)
	if err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	slog.WarnContext(ctx, "Deal marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) ListManagers(ctx context.Context) ([]core.Manager, error) {
	var rows []managerRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, name FROM managers ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	out := make([]core.Manager, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r *SQLiteRepository) GetManager(ctx context.Context, id int64) (core.Manager, error) {
	var row managerRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, name FROM managers WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Manager{}, fmt.Errorf("manager %d: %w", id, core.ErrNotFound)
		}
		return core.Manager{}, fmt.Errorf("get manager %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// CreateManager inserts a manager. Duplicate names are a validation error.
func (r *SQLiteRepository) CreateManager(ctx context.Context, m core.Manager) (core.Manager, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO managers (name, created_at) VALUES (?, ?)`,
		m.Name, r.now().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Manager{}, core.NewValidationError("name", "Manager with this name already exists.")
		}
		return core.Manager{}, fmt.Errorf("insert manager: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Manager{}, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id

	slog.InfoContext(ctx, "Manager saved to SQLite", "id", m.ID, "name", m.Name)
	return m, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
		}
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash}, nil
}

// CreateUser stores a user. It is a no-op if the username already exists.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (username) DO NOTHING`,
		username, passwordHash, r.now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "User created", "username", username)
	}
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE wildcards so they match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
