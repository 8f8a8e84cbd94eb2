package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// SQLite persists the coordinator state in a single database file. Every
// read-modify-write runs in one IMMEDIATE transaction, so writers are
// serialized by the database itself.
type SQLite struct {
	db       *sql.DB
	inboxCap int
}

var _ ports.Store = (*SQLite)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, inboxCap int) (*SQLite, error) {
	if inboxCap < 1 {
		inboxCap = DefaultInboxCap
	}
	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, inboxCap: inboxCap}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func exec(ctx context.Context, q queryer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.ExecContext(ctx, query, args...)
}

// getJSON loads the data column selected by b into dst; ErrNotFound when no row matches.
func getJSON(ctx context.Context, q queryer, b sq.SelectBuilder, dst any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var raw string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("query row: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// RegisterWorker upserts by identity inside one transaction.
func (s *SQLite) RegisterWorker(ctx context.Context, identity domain.WorkerIdentity, apply func(rec *domain.WorkerRecord, exists bool)) (domain.WorkerRecord, error) {
	var out domain.WorkerRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var rec domain.WorkerRecord
		err := getJSON(ctx, tx, psql.Select("data").From("workers").Where(sq.Eq{
			"host":        identity.Host,
			"aspect":      identity.Aspect,
			"operator_id": identity.OperatorID,
		}), &rec)
		exists := err == nil
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("load worker: %w", err)
		}

		apply(&rec, exists)
		if rec.ID == "" {
			return fmt.Errorf("register worker: no id assigned")
		}
		if err := s.putWorker(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *SQLite) putWorker(ctx context.Context, q queryer, rec domain.WorkerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode worker: %w", err)
	}
	_, err = exec(ctx, q, psql.Insert("workers").
		Columns("id", "host", "aspect", "operator_id", "registered", "data").
		Values(rec.ID, rec.Host, rec.Aspect, rec.OperatorID, rec.RegisteredAt.UnixNano(), string(data)).
		Suffix("ON CONFLICT (id) DO UPDATE SET data = excluded.data"))
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	return nil
}

// UpdateWorker applies fn to the stored record; an fn error rolls back.
func (s *SQLite) UpdateWorker(ctx context.Context, id string, apply func(rec *domain.WorkerRecord) error) (domain.WorkerRecord, error) {
	var out domain.WorkerRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var rec domain.WorkerRecord
		if err := getJSON(ctx, tx, psql.Select("data").From("workers").Where(sq.Eq{"id": id}), &rec); err != nil {
			return err
		}
		out = rec.Clone()
		if err := apply(&rec); err != nil {
			return err
		}
		if err := s.putWorker(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// GetWorker loads one worker record.
func (s *SQLite) GetWorker(ctx context.Context, id string) (domain.WorkerRecord, error) {
	var rec domain.WorkerRecord
	if err := getJSON(ctx, s.db, psql.Select("data").From("workers").Where(sq.Eq{"id": id}), &rec); err != nil {
		return domain.WorkerRecord{}, err
	}
	return rec, nil
}

// ListWorkers returns the workers of operatorID (all when empty), oldest first.
func (s *SQLite) ListWorkers(ctx context.Context, operatorID string) ([]domain.WorkerRecord, error) {
	b := psql.Select("data").From("workers").OrderBy("registered", "id")
	if operatorID != "" {
		b = b.Where(sq.Eq{"operator_id": operatorID})
	}

	result := make([]domain.WorkerRecord, 0)
	err := scanJSON(ctx, s.db, b, func(raw []byte) error {
		var rec domain.WorkerRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode worker: %w", err)
		}
		result = append(result, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return result, nil
}

// DeleteWorker removes the record and frees its identity.
func (s *SQLite) DeleteWorker(ctx context.Context, id string) error {
	res, err := exec(ctx, s.db, psql.Delete("workers").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete worker: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// MarkSeen inserts the hash or refreshes an expired one in a single
// conditional upsert; a live hash leaves the row untouched and reports a
// duplicate. Expired rows are pruned in the same transaction.
func (s *SQLite) MarkSeen(ctx context.Context, hash string, now time.Time, window time.Duration) (bool, error) {
	cutoff := now.Add(-window).UnixNano()
	fresh := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, psql.Insert("dedup").
			Columns("hash", "first_seen").
			Values(hash, now.UnixNano()).
			Suffix("ON CONFLICT (hash) DO UPDATE SET first_seen = excluded.first_seen WHERE dedup.first_seen < ?", cutoff))
		if err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
		fresh = n > 0

		if _, err := exec(ctx, tx, psql.Delete("dedup").Where(sq.Lt{"first_seen": cutoff})); err != nil {
			return fmt.Errorf("prune dedup: %w", err)
		}
		return nil
	})
	return fresh, err
}

// Forget deletes the dedup row for hash if it still carries markedAt.
func (s *SQLite) Forget(ctx context.Context, hash string, markedAt time.Time) error {
	if _, err := exec(ctx, s.db, psql.Delete("dedup").
		Where(sq.Eq{"hash": hash, "first_seen": markedAt.UnixNano()})); err != nil {
		return fmt.Errorf("forget %s: %w", hash, err)
	}
	return nil
}

// AppendRouted inserts items for the operator and evicts everything beyond the cap.
func (s *SQLite) AppendRouted(ctx context.Context, operatorID string, items []domain.RoutedItem) ([]domain.RoutedItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var evicted []domain.RoutedItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ins := psql.Insert("routed").Columns("id", "operator_id", "status", "data")
		for _, it := range items {
			data, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("encode routed item: %w", err)
			}
			ins = ins.Values(it.ID, operatorID, string(it.Status), string(data))
		}
		if _, err := exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("insert routed: %w", err)
		}

		overflow := psql.Select("data").From("routed").
			Where(sq.Eq{"operator_id": operatorID}).
			OrderBy("seq DESC").
			Suffix("LIMIT -1 OFFSET ?", s.inboxCap)
		err := scanJSON(ctx, tx, overflow, func(raw []byte) error {
			var it domain.RoutedItem
			if err := json.Unmarshal(raw, &it); err != nil {
				return fmt.Errorf("decode routed item: %w", err)
			}
			evicted = append(evicted, it)
			return nil
		})
		if err != nil {
			return fmt.Errorf("find evicted: %w", err)
		}
		if len(evicted) == 0 {
			return nil
		}

		ids := make([]string, 0, len(evicted))
		for _, it := range evicted {
			ids = append(ids, it.ID)
		}
		if _, err := exec(ctx, tx, psql.Delete("routed").Where(sq.Eq{"id": ids})); err != nil {
			return fmt.Errorf("evict routed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

// ListRouted returns inbox items newest first, optionally filtered by status.
func (s *SQLite) ListRouted(ctx context.Context, operatorID string, status domain.ItemStatus, limit int) ([]domain.RoutedItem, error) {
	b := psql.Select("data").From("routed").
		Where(sq.Eq{"operator_id": operatorID}).
		OrderBy("seq DESC")
	if status != "" {
		b = b.Where(sq.Eq{"status": string(status)})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	result := make([]domain.RoutedItem, 0)
	err := scanJSON(ctx, s.db, b, func(raw []byte) error {
		var it domain.RoutedItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return fmt.Errorf("decode routed item: %w", err)
		}
		result = append(result, it)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list routed: %w", err)
	}
	return result, nil
}

// UpdateRouted applies fn to one routed item; an fn error rolls back.
func (s *SQLite) UpdateRouted(ctx context.Context, itemID string, apply func(item *domain.RoutedItem) error) (domain.RoutedItem, error) {
	var out domain.RoutedItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var it domain.RoutedItem
		if err := getJSON(ctx, tx, psql.Select("data").From("routed").Where(sq.Eq{"id": itemID}), &it); err != nil {
			return err
		}
		out = it
		if err := apply(&it); err != nil {
			return err
		}
		data, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encode routed item: %w", err)
		}
		if _, err := exec(ctx, tx, psql.Update("routed").
			Set("status", string(it.Status)).
			Set("data", string(data)).
			Where(sq.Eq{"id": itemID})); err != nil {
			return fmt.Errorf("update routed: %w", err)
		}
		out = it
		return nil
	})
	return out, err
}

// UpdateDisclosure applies fn to the operator's record, creating it at the
// onboarding stage when missing; an fn error rolls back.
func (s *SQLite) UpdateDisclosure(ctx context.Context, operatorID string, apply func(st *domain.DisclosureState) error) (domain.DisclosureState, error) {
	var out domain.DisclosureState
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		st := domain.NewDisclosureState(operatorID, time.Time{})
		err := getJSON(ctx, tx, psql.Select("data").From("disclosure").Where(sq.Eq{"operator_id": operatorID}), &st)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("load disclosure: %w", err)
		}
		st = st.Clone()
		out = st.Clone()
		if err := apply(&st); err != nil {
			return err
		}

		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode disclosure: %w", err)
		}
		if _, err := exec(ctx, tx, psql.Insert("disclosure").
			Columns("operator_id", "data").
			Values(operatorID, string(data)).
			Suffix("ON CONFLICT (operator_id) DO UPDATE SET data = excluded.data")); err != nil {
			return fmt.Errorf("upsert disclosure: %w", err)
		}
		out = st
		return nil
	})
	return out, err
}

// GetDisclosure loads the operator's record.
func (s *SQLite) GetDisclosure(ctx context.Context, operatorID string) (domain.DisclosureState, error) {
	var st domain.DisclosureState
	if err := getJSON(ctx, s.db, psql.Select("data").From("disclosure").Where(sq.Eq{"operator_id": operatorID}), &st); err != nil {
		return domain.DisclosureState{}, err
	}
	return st.Clone(), nil
}

func scanJSON(ctx context.Context, q queryer, b sq.SelectBuilder, each func(raw []byte) error) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
		if err := each(raw); err != nil {
			_ = rows.Close()
			return err
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return fmt.Errorf("close rows: %w", closeErr)
	}
	return nil
}
