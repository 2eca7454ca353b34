package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/mo"

	"github.com/sandeepkv93/cadence/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

const definitionColumns = `id, title, description, category, priority, estimated_seconds,
	rule_type, interval_value, days_of_week, day_of_month, time_of_day, timezone,
	active, next_due_at, last_generated_at, last_due_at, end_at, created_at`

const instanceColumns = `id, definition_id, title, description, category, priority, estimated_seconds,
	state, deadline_at, created_at, completed_at`

type SQLiteRepository struct {
	db  *sql.DB
	loc *time.Location
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db, loc: time.Local}, nil
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// SetLocation sets the zone loaded timestamps are expressed in when a rule has no
// timezone of its own. Defaults to time.Local.
func (r *SQLiteRepository) SetLocation(loc *time.Location) {
	if loc != nil {
		r.loc = loc
	}
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) LoadRecurringDefinitions(ctx context.Context) ([]model.RecurringTaskDefinition, error) {
	return r.ListDefinitions(ctx, DefinitionListFilter{})
}

// SaveRecurringDefinitions upserts each definition. Generated instance ids are
// only ever appended.
func (r *SQLiteRepository) SaveRecurringDefinitions(ctx context.Context, defs []model.RecurringTaskDefinition) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return saveDefinitions(ctx, tx, defs)
	})
}

func (r *SQLiteRepository) EmitGeneratedInstances(ctx context.Context, instances []model.TaskInstance) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return insertInstances(ctx, tx, instances)
	})
}

// CommitGeneration writes definition updates and generated instances in one transaction.
func (r *SQLiteRepository) CommitGeneration(ctx context.Context, defs []model.RecurringTaskDefinition, instances []model.TaskInstance) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := saveDefinitions(ctx, tx, defs); err != nil {
			return err
		}
		return insertInstances(ctx, tx, instances)
	})
}

func (r *SQLiteRepository) GetDefinition(ctx context.Context, id string) (model.RecurringTaskDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM recurring_definitions WHERE id = ?`, id)
	def, err := r.scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RecurringTaskDefinition{}, ErrNotFound
		}
		return model.RecurringTaskDefinition{}, err
	}
	ids, err := r.instanceIDs(ctx, []string{id})
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	def.GeneratedInstanceIDs = ids[id]
	return def, nil
}

// SetDefinitionActive changes only the active flag and, when nextDue is present,
// the next due date. Generation state written by a concurrent pass is left alone.
func (r *SQLiteRepository) SetDefinitionActive(ctx context.Context, id string, active bool, nextDue mo.Option[time.Time]) error {
	query := `UPDATE recurring_definitions SET active = ?`
	args := []any{boolInt(active)}
	if due, ok := nextDue.Get(); ok {
		query += `, next_due_at = ?`
		args = append(args, mustTime(due))
	}
	query += ` WHERE id = ?`
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set definition %s active: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteDefinition(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_definitions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListDefinitions(ctx context.Context, filter DefinitionListFilter) ([]model.RecurringTaskDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM recurring_definitions`
	args := make([]any, 0, 3)
	if filter.Active != nil {
		query += ` WHERE active = ?`
		args = append(args, boolInt(*filter.Active))
	}
	query += ` ORDER BY next_due_at ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]model.RecurringTaskDefinition, 0)
	for rows.Next() {
		def, scanErr := r.scanDefinition(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(out) == 0 {
		return out, nil
	}
	defIDs := make([]string, 0, len(out))
	for _, def := range out {
		defIDs = append(defIDs, def.ID)
	}
	ids, err := r.instanceIDs(ctx, defIDs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].GeneratedInstanceIDs = ids[out[i].ID]
	}
	return out, nil
}

func (r *SQLiteRepository) GetInstance(ctx context.Context, id string) (model.TaskInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM task_instances WHERE id = ?`, id)
	inst, err := r.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TaskInstance{}, ErrNotFound
		}
		return model.TaskInstance{}, err
	}
	return inst, nil
}

func (r *SQLiteRepository) UpdateInstance(ctx context.Context, in model.TaskInstance) error {
	if err := in.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE task_instances
		SET title = ?, description = ?, category = ?, priority = ?, estimated_seconds = ?, state = ?, deadline_at = ?, completed_at = ?
		WHERE id = ?`,
		in.Title, in.Description, in.Category, string(in.Priority), durationSeconds(in.EstimatedDuration),
		string(in.State), mustTime(in.Deadline), nullTime(in.CompletedAt), in.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListInstances(ctx context.Context, filter InstanceListFilter) ([]model.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM task_instances`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.DefinitionID != "" {
		clauses = append(clauses, "definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, filter.State)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY deadline_at ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TaskInstance, 0)
	for rows.Next() {
		inst, scanErr := r.scanInstance(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
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

func saveDefinitions(ctx context.Context, ex execer, defs []model.RecurringTaskDefinition) error {
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		rule := def.Rule
		var dom any
		if v, ok := rule.DayOfMonth().Get(); ok {
			dom = v
		}
		_, err := ex.ExecContext(ctx, `
			INSERT INTO recurring_definitions (`+definitionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				category = excluded.category,
				priority = excluded.priority,
				estimated_seconds = excluded.estimated_seconds,
				rule_type = excluded.rule_type,
				interval_value = excluded.interval_value,
				days_of_week = excluded.days_of_week,
				day_of_month = excluded.day_of_month,
				time_of_day = excluded.time_of_day,
				timezone = excluded.timezone,
				active = excluded.active,
				next_due_at = excluded.next_due_at,
				last_generated_at = excluded.last_generated_at,
				last_due_at = excluded.last_due_at,
				end_at = excluded.end_at`,
			def.ID, def.Title, def.Description, def.Category, string(def.Priority), durationSeconds(def.EstimatedDuration),
			string(rule.Frequency()), rule.Interval(), encodeWeekdays(rule.DaysOfWeek()), dom, rule.TimeOfDay().String(), rule.Timezone(),
			boolInt(def.IsActive), mustTime(def.NextDueDate), optionTime(def.LastGeneratedAt), optionTime(def.LastDueDate),
			optionTime(def.EndDate), mustTime(def.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("save definition %s: %w", def.ID, err)
		}

		// The instance id trail is append-only: ids already recorded keep their
		// position and ids missing from a stale record are never removed.
		for _, instID := range def.GeneratedInstanceIDs {
			if _, err := ex.ExecContext(ctx, `
				INSERT OR IGNORE INTO definition_instances (definition_id, instance_id, position)
				SELECT ?, ?, COALESCE(MAX(position), -1) + 1 FROM definition_instances WHERE definition_id = ?`,
				def.ID, instID, def.ID,
			); err != nil {
				return fmt.Errorf("save instance id %s: %w", instID, err)
			}
		}
	}
	return nil
}

func insertInstances(ctx context.Context, ex execer, instances []model.TaskInstance) error {
	for _, in := range instances {
		if err := in.Validate(); err != nil {
			return err
		}
		_, err := ex.ExecContext(ctx, `
			INSERT INTO task_instances (`+instanceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.DefinitionID, in.Title, in.Description, in.Category, string(in.Priority), durationSeconds(in.EstimatedDuration),
			string(in.State), mustTime(in.Deadline), mustTime(in.CreatedAt), nullTime(in.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert instance %s: %w", in.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) instanceIDs(ctx context.Context, defIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(defIDs))
	if len(defIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(defIDs)), ",")
	args := make([]any, 0, len(defIDs))
	for _, id := range defIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT definition_id, instance_id FROM definition_instances
		WHERE definition_id IN (`+placeholders+`)
		ORDER BY definition_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var defID, instID string
		if err := rows.Scan(&defID, &instID); err != nil {
			return nil, err
		}
		out[defID] = append(out[defID], instID)
	}
	return out, rows.Err()
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func optionTime(v mo.Option[time.Time]) any {
	if t, ok := v.Get(); ok {
		return mustTime(t)
	}
	return nil
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func durationSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	} else if offset > 0 {
		sql += " LIMIT -1"
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanDefinition(s scanner) (model.RecurringTaskDefinition, error) {
	var out model.RecurringTaskDefinition
	var priority, ruleType, days, tod, timezone string
	var nextDue, created string
	var estimated int64
	var interval, active int
	var dom sql.NullInt64
	var lastGenerated, lastDue, endAt sql.NullString
	if err := s.Scan(&out.ID, &out.Title, &out.Description, &out.Category, &priority, &estimated,
		&ruleType, &interval, &days, &dom, &tod, &timezone,
		&active, &nextDue, &lastGenerated, &lastDue, &endAt, &created); err != nil {
		return model.RecurringTaskDefinition{}, err
	}

	weekdays, err := decodeWeekdays(days)
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	timeOfDay, err := model.ParseTimeOfDay(tod)
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	params := model.RuleParams{
		Frequency:  model.Frequency(ruleType),
		Interval:   interval,
		DaysOfWeek: weekdays,
		TimeOfDay:  timeOfDay,
		Timezone:   timezone,
	}
	if dom.Valid {
		params.DayOfMonth = mo.Some(int(dom.Int64))
	}
	rule, err := model.NewRecurrenceRule(params)
	if err != nil {
		return model.RecurringTaskDefinition{}, fmt.Errorf("storage: definition %s: %w", out.ID, err)
	}

	loc := r.loc
	if rl := rule.Location(); rl != nil {
		loc = rl
	}
	next, err := parseRequiredTime(nextDue)
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	if out.LastGeneratedAt, err = parseOptionTime(lastGenerated, loc); err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	if out.LastDueDate, err = parseOptionTime(lastDue, loc); err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	if out.EndDate, err = parseOptionTime(endAt, loc); err != nil {
		return model.RecurringTaskDefinition{}, err
	}

	out.Priority = model.Priority(priority)
	out.EstimatedDuration = time.Duration(estimated) * time.Second
	out.Rule = rule
	out.IsActive = active == 1
	out.NextDueDate = next.In(loc)
	out.CreatedAt = createdAt.In(loc)
	return out, nil
}

func parseOptionTime(v sql.NullString, loc *time.Location) (mo.Option[time.Time], error) {
	tm, err := parseNullableTime(v)
	if err != nil || tm == nil {
		return mo.None[time.Time](), err
	}
	return mo.Some(tm.In(loc)), nil
}

func (r *SQLiteRepository) scanInstance(s scanner) (model.TaskInstance, error) {
	var out model.TaskInstance
	var priority, state, deadline, created string
	var estimated int64
	var completed sql.NullString
	if err := s.Scan(&out.ID, &out.DefinitionID, &out.Title, &out.Description, &out.Category, &priority, &estimated,
		&state, &deadline, &created, &completed); err != nil {
		return model.TaskInstance{}, err
	}
	deadlineAt, err := parseRequiredTime(deadline)
	if err != nil {
		return model.TaskInstance{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.TaskInstance{}, err
	}
	completedAt, err := parseNullableTime(completed)
	if err != nil {
		return model.TaskInstance{}, err
	}
	if completedAt != nil {
		local := completedAt.In(r.loc)
		completedAt = &local
	}
	out.Priority = model.Priority(priority)
	out.State = model.TaskState(state)
	out.EstimatedDuration = time.Duration(estimated) * time.Second
	out.Deadline = deadlineAt.In(r.loc)
	out.CreatedAt = createdAt.In(r.loc)
	out.CompletedAt = completedAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
