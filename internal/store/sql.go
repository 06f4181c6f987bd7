package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"harborplan/internal/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect selects the driver and placeholder style of a SQL store.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQL implements Store on database/sql. Queries are written once with ?
// placeholders and rebound per dialect.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens and pings the database. For SQLite the dsn is a file path or
// a go-sqlite3 URI.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQL, error) {
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		// One writer at a time keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQL{db: db, dialect: dialect}, nil
}

func (s *SQL) Dialect() Dialect { return s.dialect }

// Migrate applies the embedded schema. Statements are idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + string(s.dialect) + ".sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQL) Close() error                   { return s.db.Close() }

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
}

func (s *SQL) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...)
}

// Boats

const boatCols = `id, name, width, arrival, departure`

func scanBoat(sc interface{ Scan(...any) error }) (model.Boat, error) {
	var b model.Boat
	if err := sc.Scan(&b.ID, &b.Name, &b.Width, &b.Arrival, &b.Departure); err != nil {
		return model.Boat{}, err
	}
	b.Arrival, b.Departure = b.Arrival.UTC(), b.Departure.UTC()
	return b, nil
}

func (s *SQL) CreateBoat(ctx context.Context, b model.Boat) (model.Boat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Boat{}, err
	}
	defer func() { _ = tx.Rollback() }()

	b.Arrival, b.Departure = b.Arrival.UTC(), b.Departure.UTC()
	if b.ID != 0 {
		if err := s.ensureFree(ctx, tx, "boats", b.ID); err != nil {
			return model.Boat{}, err
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO boats (id, name, width, arrival, departure) VALUES (?,?,?,?,?)`),
			b.ID, b.Name, b.Width, b.Arrival, b.Departure)
		if err == nil {
			err = s.syncSequence(ctx, tx, "boats")
		}
	} else {
		err = tx.QueryRowContext(ctx, s.dialect.rebind(`INSERT INTO boats (name, width, arrival, departure) VALUES (?,?,?,?) RETURNING id`),
			b.Name, b.Width, b.Arrival, b.Departure).Scan(&b.ID)
	}
	if err != nil {
		return model.Boat{}, err
	}
	return b, tx.Commit()
}

func (s *SQL) GetBoat(ctx context.Context, id int64) (model.Boat, error) {
	b, err := scanBoat(s.queryRow(ctx, `SELECT `+boatCols+` FROM boats WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Boat{}, ErrNotFound
	}
	return b, err
}

func (s *SQL) ListBoats(ctx context.Context) ([]model.Boat, error) {
	rows, err := s.query(ctx, `SELECT `+boatCols+` FROM boats ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Boat{}
	for rows.Next() {
		b, err := scanBoat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQL) UpdateBoat(ctx context.Context, b model.Boat) (model.Boat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Boat{}, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := scanBoat(tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+boatCols+` FROM boats WHERE id=?`), b.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Boat{}, ErrNotFound
	}
	if err != nil {
		return model.Boat{}, err
	}
	b.Arrival, b.Departure = b.Arrival.UTC(), b.Departure.UTC()
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE boats SET name=?, width=?, arrival=?, departure=? WHERE id=?`),
		b.Name, b.Width, b.Arrival, b.Departure, b.ID); err != nil {
		return model.Boat{}, err
	}
	if boatMoved(old, b) {
		if err := s.dropStaysTx(ctx, tx, "boat_id", b.ID); err != nil {
			return model.Boat{}, err
		}
	}
	return b, tx.Commit()
}

func (s *SQL) DeleteBoat(ctx context.Context, id int64) error {
	return s.deleteWithStays(ctx, "boats", "boat_id", id)
}

// Slots

const slotCols = `id, name, max_width, reserved, available_from, available_until, slot_type`

func scanSlot(sc interface{ Scan(...any) error }) (model.Slot, error) {
	var sl model.Slot
	var from, until sql.NullTime
	var typ string
	if err := sc.Scan(&sl.ID, &sl.Name, &sl.MaxWidth, &sl.Reserved, &from, &until, &typ); err != nil {
		return model.Slot{}, err
	}
	if from.Valid {
		t := from.Time.UTC()
		sl.AvailableFrom = &t
	}
	if until.Valid {
		t := until.Time.UTC()
		sl.AvailableUntil = &t
	}
	sl.Type = model.SlotType(typ)
	return sl, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (s *SQL) CreateSlot(ctx context.Context, sl model.Slot) (model.Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Slot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	args := []any{sl.Name, sl.MaxWidth, sl.Reserved, nullTime(sl.AvailableFrom), nullTime(sl.AvailableUntil), string(sl.Type)}
	if sl.ID != 0 {
		if err := s.ensureFree(ctx, tx, "slots", sl.ID); err != nil {
			return model.Slot{}, err
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO slots (id, name, max_width, reserved, available_from, available_until, slot_type) VALUES (?,?,?,?,?,?,?)`),
			append([]any{sl.ID}, args...)...)
		if err == nil {
			err = s.syncSequence(ctx, tx, "slots")
		}
	} else {
		err = tx.QueryRowContext(ctx, s.dialect.rebind(`INSERT INTO slots (name, max_width, reserved, available_from, available_until, slot_type) VALUES (?,?,?,?,?,?) RETURNING id`),
			args...).Scan(&sl.ID)
	}
	if err != nil {
		return model.Slot{}, err
	}
	return sl, tx.Commit()
}

func (s *SQL) GetSlot(ctx context.Context, id int64) (model.Slot, error) {
	sl, err := scanSlot(s.queryRow(ctx, `SELECT `+slotCols+` FROM slots WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, ErrNotFound
	}
	return sl, err
}

func (s *SQL) ListSlots(ctx context.Context) ([]model.Slot, error) {
	rows, err := s.query(ctx, `SELECT `+slotCols+` FROM slots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Slot{}
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *SQL) UpdateSlot(ctx context.Context, sl model.Slot) (model.Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Slot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := scanSlot(tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+slotCols+` FROM slots WHERE id=?`), sl.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, ErrNotFound
	}
	if err != nil {
		return model.Slot{}, err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE slots SET name=?, max_width=?, reserved=?, available_from=?, available_until=?, slot_type=? WHERE id=?`),
		sl.Name, sl.MaxWidth, sl.Reserved, nullTime(sl.AvailableFrom), nullTime(sl.AvailableUntil), string(sl.Type), sl.ID); err != nil {
		return model.Slot{}, err
	}
	if slotChanged(old, sl) {
		if err := s.dropStaysTx(ctx, tx, "slot_id", sl.ID); err != nil {
			return model.Slot{}, err
		}
	}
	return sl, tx.Commit()
}

func (s *SQL) DeleteSlot(ctx context.Context, id int64) error {
	return s.deleteWithStays(ctx, "slots", "slot_id", id)
}

func (s *SQL) ensureFree(ctx context.Context, tx *sql.Tx, table string, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM `+table+` WHERE id=?`), id).Scan(&one)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s %d", ErrConflict, strings.TrimSuffix(table, "s"), id)
	case errors.Is(err, sql.ErrNoRows):
		return nil
	}
	return err
}

// syncSequence moves the Postgres identity past explicitly inserted ids.
// SQLite rowids already continue from the maximum.
func (s *SQL) syncSequence(ctx context.Context, tx *sql.Tx, table string) error {
	if s.dialect != Postgres {
		return nil
	}
	_, err := tx.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('`+table+`', 'id'), (SELECT MAX(id) FROM `+table+`))`)
	return err
}

func (s *SQL) deleteWithStays(ctx context.Context, table, fk string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.dropStaysTx(ctx, tx, fk, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM `+table+` WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// dropStaysTx removes saved stays referencing id through column fk.
func (s *SQL) dropStaysTx(ctx context.Context, tx *sql.Tx, fk string, id int64) error {
	_, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM stays WHERE `+fk+`=?`), id)
	return err
}

// Solutions

// SaveSolution validates stays against the stored snapshot and replaces the
// previous solution for strategy in one transaction.
func (s *SQL) SaveSolution(ctx context.Context, strategy string, stays []model.Stay) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	boats, slots, err := s.snapshotTx(ctx, tx, stays)
	if err != nil {
		return 0, err
	}
	valid, err := validateSolution(strategy, stays, boats, slots)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM stays WHERE strategy=?`), strategy); err != nil {
		return 0, err
	}
	ins, err := tx.PrepareContext(ctx, s.dialect.rebind(`INSERT INTO stays (strategy, boat_id, slot_id, start_at, end_at, detail) VALUES (?,?,?,?,?,?)`))
	if err != nil {
		return 0, err
	}
	defer ins.Close()
	for _, st := range valid {
		if _, err := ins.ExecContext(ctx, st.Strategy, st.BoatID, st.SlotID, st.Start.UTC(), st.End.UTC(), st.Detail); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(valid), nil
}

// snapshotTx loads the boats and slots referenced by stays inside tx.
func (s *SQL) snapshotTx(ctx context.Context, tx *sql.Tx, stays []model.Stay) (map[int64]model.Boat, map[int64]model.Slot, error) {
	boats := map[int64]model.Boat{}
	slots := map[int64]model.Slot{}
	for _, st := range stays {
		if _, seen := boats[st.BoatID]; !seen {
			b, err := scanBoat(tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+boatCols+` FROM boats WHERE id=?`), st.BoatID))
			switch {
			case err == nil:
				boats[b.ID] = b
			case !errors.Is(err, sql.ErrNoRows):
				return nil, nil, err
			}
		}
		if _, seen := slots[st.SlotID]; !seen {
			sl, err := scanSlot(tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+slotCols+` FROM slots WHERE id=?`), st.SlotID))
			switch {
			case err == nil:
				slots[sl.ID] = sl
			case !errors.Is(err, sql.ErrNoRows):
				return nil, nil, err
			}
		}
	}
	return boats, slots, nil
}

func (s *SQL) ListStays(ctx context.Context, strategy string, page Page) ([]model.Stay, error) {
	q := `SELECT strategy, boat_id, slot_id, start_at, end_at, detail FROM stays`
	var args []any
	if strategy != "" {
		q += ` WHERE strategy=?`
		args = append(args, strategy)
	}
	q += ` ORDER BY strategy, id`
	if page.Limit > 0 || page.Offset > 0 {
		limit := page.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, max(page.Offset, 0))
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Stay{}
	for rows.Next() {
		var st model.Stay
		if err := rows.Scan(&st.Strategy, &st.BoatID, &st.SlotID, &st.Start, &st.End, &st.Detail); err != nil {
			return nil, err
		}
		st.Start, st.End = st.Start.UTC(), st.End.UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

// Metrics

func (s *SQL) SavePlanMetrics(ctx context.Context, pm PlanMetrics) error {
	body, err := json.Marshal(pm.Metrics)
	if err != nil {
		return err
	}
	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now().UTC()
	}
	_, err = s.exec(ctx, `INSERT INTO plan_metrics (run_id, strategy, rank, score, elapsed_ms, metrics, created_at) VALUES (?,?,?,?,?,?,?)
        ON CONFLICT (run_id, strategy) DO UPDATE SET rank=excluded.rank, score=excluded.score, elapsed_ms=excluded.elapsed_ms, metrics=excluded.metrics, created_at=excluded.created_at`,
		pm.RunID, pm.Strategy, pm.Rank, pm.Score, pm.ElapsedMs, string(body), pm.CreatedAt.UTC())
	return err
}

func (s *SQL) ListPlanMetrics(ctx context.Context, runID, strategy string) ([]PlanMetrics, error) {
	q := `SELECT run_id, strategy, rank, score, elapsed_ms, metrics, created_at FROM plan_metrics WHERE 1=1`
	var args []any
	if runID != "" {
		q += ` AND run_id=?`
		args = append(args, runID)
	}
	if strategy != "" {
		q += ` AND strategy=?`
		args = append(args, strategy)
	}
	rows, err := s.query(ctx, q+` ORDER BY created_at DESC, rank ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PlanMetrics{}
	for rows.Next() {
		var pm PlanMetrics
		var body []byte
		if err := rows.Scan(&pm.RunID, &pm.Strategy, &pm.Rank, &pm.Score, &pm.ElapsedMs, &body, &pm.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &pm.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s/%s: %w", pm.RunID, pm.Strategy, err)
		}
		pm.CreatedAt = pm.CreatedAt.UTC()
		out = append(out, pm)
	}
	return out, rows.Err()
}

// Subscriptions

func (s *SQL) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	sub.ID = uuid.New().String()
	ev, _ := json.Marshal(sub.Events)
	_, err := s.exec(ctx, `INSERT INTO subscriptions (id, url, events, secret, created_at) VALUES (?,?,?,?,?)`, sub.ID, sub.URL, string(ev), sub.Secret, time.Now().UTC())
	if err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.query(ctx, `SELECT id, url, secret, events FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var sub model.Subscription
		var ev []byte
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &sub.Events)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetSubscriptionsForEvent filters in Go; the events column is plain JSON text
// in both dialects.
func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	all, err := s.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Subscription
	for _, sub := range all {
		for _, e := range sub.Events {
			if e == eventType {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func (s *SQL) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM subscriptions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries

// EnqueueWebhook returns an empty id when an identical delivery is already queued.
func (s *SQL) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	res, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key, created_at, updated_at)
        VALUES (?,?,?,?,?,?,'pending',0,?,?,?,?)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`,
		id, subscriptionID, eventType, url, secret, payload, now, computeDedupKey(payload), now, now)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", nil
	}
	return id, nil
}

const deliveryCols = `id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, delivered_at, created_at`

func scanDelivery(sc interface{ Scan(...any) error }) (WebhookDelivery, error) {
	var d WebhookDelivery
	var delivered sql.NullTime
	if err := sc.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
		&d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered, &d.CreatedAt); err != nil {
		return WebhookDelivery{}, err
	}
	if delivered.Valid {
		t := delivered.Time.UTC()
		d.DeliveredAt = &t
	}
	d.NextAttemptAt, d.CreatedAt = d.NextAttemptAt.UTC(), d.CreatedAt.UTC()
	return d, nil
}

func (s *SQL) listDeliveries(ctx context.Context, q string, args ...any) ([]WebhookDelivery, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listDeliveries(ctx, `SELECT `+deliveryCols+` FROM webhook_deliveries
        WHERE status IN ('pending','retry') AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`, time.Now().UTC(), limit)
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if success {
		res, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', response_code=?, latency_ms=?, delivered_at=?, updated_at=? WHERE id=?`,
			responseCode, latencyMs, now, now, id)
	} else {
		next := now.Add(time.Minute)
		if nextAttemptAt != nil {
			next = nextAttemptAt.UTC()
		}
		res, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=?, next_attempt_at=?, response_code=?, latency_ms=?, updated_at=? WHERE id=?`,
			lastError, next, responseCode, latencyMs, now, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=?, response_code=?, latency_ms=?, updated_at=? WHERE id=?`,
		lastError, responseCode, latencyMs, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if status != "" {
		return s.listDeliveries(ctx, `SELECT `+deliveryCols+` FROM webhook_deliveries WHERE status=? ORDER BY created_at DESC LIMIT ?`, status, limit)
	}
	return s.listDeliveries(ctx, `SELECT `+deliveryCols+` FROM webhook_deliveries ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQL) RetryWebhookDelivery(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET status='retry', next_attempt_at=?, updated_at=? WHERE id=?`, now, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
