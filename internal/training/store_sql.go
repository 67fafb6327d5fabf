package training

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

// queryer is the part of *sql.DB and *sql.Tx the store needs.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

const progressCols = `id,user_id,scope_kind,scope_id,course_id,module_id,status,progress_percentage,score,time_spent_minutes,last_accessed_at,completed_at,created_at,updated_at`

func (s *SQLStore) UpsertProgress(ctx context.Context, p Progress) (Progress, error) {
	return s.upsertProgress(ctx, s.db, p)
}

func (s *SQLStore) upsertProgress(ctx context.Context, q queryer, p Progress) (Progress, error) {
	now := s.now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.LastAccessedAt.IsZero() {
		p.LastAccessedAt = now
	}
	p.UpdatedAt = now
	var created int64
	err := q.QueryRowContext(ctx, `INSERT INTO progress (`+progressCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (user_id, scope_kind, scope_id) DO UPDATE SET
			course_id=EXCLUDED.course_id,
			module_id=EXCLUDED.module_id,
			status=EXCLUDED.status,
			progress_percentage=EXCLUDED.progress_percentage,
			score=EXCLUDED.score,
			time_spent_minutes=EXCLUDED.time_spent_minutes,
			last_accessed_at=EXCLUDED.last_accessed_at,
			completed_at=EXCLUDED.completed_at,
			updated_at=EXCLUDED.updated_at
		RETURNING id, created_at`,
		p.ID, p.UserID, string(p.Scope.Kind), p.Scope.ID, p.CourseID, p.ModuleID, string(p.Status),
		p.ProgressPercentage, nullInt(p.Score), p.TimeSpentMinutes, millis(p.LastAccessedAt),
		nullMillis(p.CompletedAt), millis(now), millis(now)).
		Scan(&p.ID, &created)
	if err != nil {
		return Progress{}, fmt.Errorf("upsert progress: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (s *SQLStore) GetProgress(ctx context.Context, userID string, scope Scope) (Progress, error) {
	return s.getProgress(ctx, s.db, userID, scope)
}

func (s *SQLStore) getProgress(ctx context.Context, q queryer, userID string, scope Scope) (Progress, error) {
	row := q.QueryRowContext(ctx, `SELECT `+progressCols+` FROM progress
		WHERE user_id=$1 AND scope_kind=$2 AND scope_id=$3`, userID, string(scope.Kind), scope.ID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{}, apperr.NotFound("no %s progress for %q", scope.Kind, scope.ID)
	}
	return p, err
}

func (s *SQLStore) ListProgress(ctx context.Context, userID, courseID string) ([]Progress, error) {
	query := `SELECT ` + progressCols + ` FROM progress WHERE user_id=$1`
	args := []any{userID}
	if courseID != "" {
		query += ` AND course_id=$2`
		args = append(args, courseID)
	}
	query += ` ORDER BY updated_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()
	out := []Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteProgress(ctx context.Context, userID string, scope Scope) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE user_id=$1 AND scope_kind=$2 AND scope_id=$3`,
		userID, string(scope.Kind), scope.ID)
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no %s progress for %q", scope.Kind, scope.ID)
	}
	return nil
}

func (s *SQLStore) InsertQuizAttempt(ctx context.Context, a QuizAttempt, maxAttempts int, guard AttemptGuard, progress ProgressFunc) (QuizAttempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return QuizAttempt{}, err
	}
	defer tx.Rollback()

	// The counter upsert takes a row lock on (user, quiz) until commit, so
	// concurrent submissions for the same pair are numbered one after another.
	var n int
	err = tx.QueryRowContext(ctx, `INSERT INTO quiz_attempt_counters (user_id, quiz_id, last_number)
		VALUES ($1,$2,1)
		ON CONFLICT (user_id, quiz_id) DO UPDATE SET last_number=quiz_attempt_counters.last_number+1
		RETURNING last_number`, a.UserID, a.QuizID).Scan(&n)
	if err != nil {
		return QuizAttempt{}, fmt.Errorf("allocate attempt number: %w", err)
	}
	if maxAttempts > 0 && n > maxAttempts {
		return QuizAttempt{}, apperr.Conflict(nil, "attempt limit reached")
	}
	if guard != nil {
		var last *QuizAttempt
		if n > 1 {
			prev, err := s.attemptByNumber(ctx, tx, a.UserID, a.QuizID, n-1)
			if err != nil {
				return QuizAttempt{}, err
			}
			last = &prev
		}
		if err := guard(last); err != nil {
			return QuizAttempt{}, err
		}
	}
	a.AttemptNumber = n
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return QuizAttempt{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO quiz_attempts
		(id,user_id,quiz_id,attempt_number,answers_json,score,passed,time_spent_minutes,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.UserID, a.QuizID, a.AttemptNumber, string(answers), a.Score, a.Passed,
		a.TimeSpentMinutes, millis(a.CompletedAt))
	if err != nil {
		return QuizAttempt{}, fmt.Errorf("insert attempt: %w", err)
	}

	if progress != nil {
		var prev *Progress
		p, err := s.getProgress(ctx, tx, a.UserID, QuizScope(a.QuizID))
		switch {
		case err == nil:
			prev = &p
		case !apperr.IsNotFound(err):
			return QuizAttempt{}, err
		}
		if _, err := s.upsertProgress(ctx, tx, progress(prev, a)); err != nil {
			return QuizAttempt{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return QuizAttempt{}, err
	}
	return a, nil
}

const attemptCols = `id,user_id,quiz_id,attempt_number,answers_json,score,passed,time_spent_minutes,completed_at`

func (s *SQLStore) attemptByNumber(ctx context.Context, q queryer, userID, quizID string, number int) (QuizAttempt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts
		WHERE user_id=$1 AND quiz_id=$2 AND attempt_number=$3`, userID, quizID, number)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return QuizAttempt{}, apperr.NotFound("attempt %d of quiz %q not found", number, quizID)
	}
	return a, err
}

func (s *SQLStore) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]QuizAttempt, error) {
	query := `SELECT ` + attemptCols + ` FROM quiz_attempts WHERE user_id=$1`
	args := []any{userID}
	if quizID != "" {
		query += ` AND quiz_id=$2`
		args = append(args, quizID)
	}
	query += ` ORDER BY quiz_id, attempt_number`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	out := []QuizAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertSimulationSession(ctx context.Context, ss SimulationSession) (SimulationSession, error) {
	now := s.now()
	if ss.ID == "" {
		ss.ID = uuid.NewString()
	}
	if ss.StartedAt.IsZero() {
		ss.StartedAt = now
	}
	ss.UpdatedAt = now
	var started int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO simulation_sessions
		(id,user_id,campaign_id,template_id,status,vulnerability_score,completed,started_at,updated_at,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status,
			vulnerability_score=EXCLUDED.vulnerability_score,
			completed=EXCLUDED.completed,
			updated_at=EXCLUDED.updated_at,
			completed_at=EXCLUDED.completed_at
		RETURNING started_at`,
		ss.ID, ss.UserID, ss.CampaignID, ss.TemplateID, string(ss.Status), ss.VulnerabilityScore,
		ss.Completed, millis(ss.StartedAt), millis(now), nullMillis(ss.CompletedAt)).Scan(&started)
	if err != nil {
		return SimulationSession{}, fmt.Errorf("upsert session: %w", err)
	}
	return s.GetSimulationSession(ctx, ss.ID)
}

func (s *SQLStore) GetSimulationSession(ctx context.Context, id string) (SimulationSession, error) {
	return s.getSession(ctx, s.db, id, false)
}

func (s *SQLStore) getSession(ctx context.Context, q queryer, id string, lock bool) (SimulationSession, error) {
	query := `SELECT id,user_id,campaign_id,template_id,status,vulnerability_score,completed,started_at,updated_at,completed_at
		FROM simulation_sessions WHERE id=$1`
	if lock && s.driver == "postgres" {
		query += ` FOR UPDATE`
	}
	var (
		ss               SimulationSession
		status           string
		started, updated int64
		completedAt      sql.NullInt64
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&ss.ID, &ss.UserID, &ss.CampaignID, &ss.TemplateID, &status,
		&ss.VulnerabilityScore, &ss.Completed, &started, &updated, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SimulationSession{}, apperr.NotFound("simulation session %q not found", id)
	}
	if err != nil {
		return SimulationSession{}, err
	}
	ss.Status = SessionStatus(status)
	ss.StartedAt = fromMillis(started)
	ss.UpdatedAt = fromMillis(updated)
	ss.CompletedAt = fromNullMillis(completedAt)

	ss.Actions, err = s.listActions(ctx, q, id)
	if err != nil {
		return SimulationSession{}, err
	}
	return ss, nil
}

func (s *SQLStore) listActions(ctx context.Context, q queryer, sessionID string) ([]PhishingAction, error) {
	rows, err := q.QueryContext(ctx, `SELECT kind,occurred_at,ip_address,user_agent,extra_json
		FROM simulation_actions WHERE session_id=$1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PhishingAction{}
	for rows.Next() {
		var (
			a     PhishingAction
			kind  string
			at    int64
			extra string
		)
		if err := rows.Scan(&kind, &at, &a.IPAddress, &a.UserAgent, &extra); err != nil {
			return nil, err
		}
		a.Kind = ActionKind(kind)
		a.Timestamp = fromMillis(at)
		if extra != "" {
			if err := json.Unmarshal([]byte(extra), &a.Extra); err != nil {
				return nil, fmt.Errorf("action extra: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AppendSessionAction(ctx context.Context, sessionID string, action PhishingAction, rescore Rescorer) (SimulationSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SimulationSession{}, err
	}
	defer tx.Rollback()

	ss, err := s.getSession(ctx, tx, sessionID, true)
	if err != nil {
		return SimulationSession{}, err
	}
	if ss.Status.Closed() {
		return SimulationSession{}, apperr.Conflict(nil, "simulation session %q is %s", sessionID, ss.Status)
	}
	extra := ""
	if len(action.Extra) > 0 {
		buf, err := json.Marshal(action.Extra)
		if err != nil {
			return SimulationSession{}, err
		}
		extra = string(buf)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO simulation_actions
		(session_id,seq,kind,occurred_at,ip_address,user_agent,extra_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sessionID, len(ss.Actions)+1, string(action.Kind), millis(action.Timestamp),
		action.IPAddress, action.UserAgent, extra)
	if err != nil {
		return SimulationSession{}, fmt.Errorf("append action: %w", err)
	}
	ss.Actions = append(ss.Actions, action)
	if ss.Status == SessionStarted {
		ss.Status = SessionInProgress
	}
	if rescore != nil {
		ss.VulnerabilityScore = rescore(ss.Actions)
	}
	ss.UpdatedAt = s.now()
	_, err = tx.ExecContext(ctx, `UPDATE simulation_sessions
		SET status=$1, vulnerability_score=$2, updated_at=$3 WHERE id=$4`,
		string(ss.Status), ss.VulnerabilityScore, millis(ss.UpdatedAt), sessionID)
	if err != nil {
		return SimulationSession{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SimulationSession{}, err
	}
	return ss, nil
}

func (s *SQLStore) CloseSimulationSession(ctx context.Context, sessionID string, status SessionStatus, at time.Time, rescore Rescorer) (SimulationSession, error) {
	if !status.Closed() {
		return SimulationSession{}, apperr.Validation("status", "%q does not close a session", status)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SimulationSession{}, err
	}
	defer tx.Rollback()

	// On sqlite the write lock is taken by the UPDATE below; the status guard
	// in its WHERE clause keeps a racing close from applying twice.
	ss, err := s.getSession(ctx, tx, sessionID, true)
	if err != nil {
		return SimulationSession{}, err
	}
	if ss.Status.Closed() {
		return SimulationSession{}, apperr.Conflict(nil, "simulation session %q is %s", sessionID, ss.Status)
	}
	ss.Status = status
	ss.Completed = status == SessionCompleted
	ss.CompletedAt = &at
	if rescore != nil {
		ss.VulnerabilityScore = rescore(ss.Actions)
	}
	ss.UpdatedAt = s.now()
	res, err := tx.ExecContext(ctx, `UPDATE simulation_sessions
		SET status=$1, completed=$2, vulnerability_score=$3, updated_at=$4, completed_at=$5
		WHERE id=$6 AND status NOT IN ('completed','abandoned')`,
		string(ss.Status), ss.Completed, ss.VulnerabilityScore, millis(ss.UpdatedAt), millis(at), sessionID)
	if err != nil {
		return SimulationSession{}, fmt.Errorf("close session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return SimulationSession{}, apperr.Conflict(nil, "simulation session %q already closed", sessionID)
	}
	if err := tx.Commit(); err != nil {
		return SimulationSession{}, err
	}
	return ss, nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(r rowScanner) (Progress, error) {
	var (
		p                          Progress
		kind, status               string
		score, completedAt         sql.NullInt64
		lastAccessed, created, upd int64
	)
	err := r.Scan(&p.ID, &p.UserID, &kind, &p.Scope.ID, &p.CourseID, &p.ModuleID, &status,
		&p.ProgressPercentage, &score, &p.TimeSpentMinutes, &lastAccessed, &completedAt, &created, &upd)
	if err != nil {
		return Progress{}, err
	}
	p.Scope.Kind = ScopeKind(kind)
	p.Status = Status(status)
	if score.Valid {
		v := int(score.Int64)
		p.Score = &v
	}
	p.LastAccessedAt = fromMillis(lastAccessed)
	p.CompletedAt = fromNullMillis(completedAt)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(upd)
	return p, nil
}

func scanAttempt(r rowScanner) (QuizAttempt, error) {
	var (
		a         QuizAttempt
		answers   string
		completed int64
	)
	if err := r.Scan(&a.ID, &a.UserID, &a.QuizID, &a.AttemptNumber, &answers, &a.Score, &a.Passed,
		&a.TimeSpentMinutes, &completed); err != nil {
		return QuizAttempt{}, err
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return QuizAttempt{}, fmt.Errorf("attempt %s answers: %w", a.ID, err)
	}
	a.CompletedAt = fromMillis(completed)
	return a, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
