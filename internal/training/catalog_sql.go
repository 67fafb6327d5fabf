package training

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

// SQLCatalog reads course content from the courses/modules/lessons/quizzes/
// questions tables. Authoring happens elsewhere; Import exists for seeding.
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog { return &SQLCatalog{db: db} }

func notFound(what, id string) error { return apperr.NotFound("%s %q not found", what, id) }

func (c *SQLCatalog) GetCourse(ctx context.Context, id string) (Course, error) {
	var co Course
	err := c.db.QueryRowContext(ctx, `SELECT id,title,level,status FROM courses WHERE id=$1`, id).
		Scan(&co.ID, &co.Title, &co.Level, &co.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, notFound("course", id)
	}
	return co, err
}

func (c *SQLCatalog) GetModule(ctx context.Context, id string) (Module, error) {
	var m Module
	err := c.db.QueryRowContext(ctx, `SELECT id,course_id,title,position,duration_minutes FROM modules WHERE id=$1`, id).
		Scan(&m.ID, &m.CourseID, &m.Title, &m.Order, &m.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return Module{}, notFound("module", id)
	}
	return m, err
}

func (c *SQLCatalog) GetModulesByCourse(ctx context.Context, courseID string) ([]Module, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id,course_id,title,position,duration_minutes
		FROM modules WHERE course_id=$1 ORDER BY position, id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Module{}
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Order, &m.DurationMinutes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *SQLCatalog) GetLesson(ctx context.Context, id string) (Lesson, error) {
	var l Lesson
	err := c.db.QueryRowContext(ctx, `SELECT id,module_id,title,position FROM lessons WHERE id=$1`, id).
		Scan(&l.ID, &l.ModuleID, &l.Title, &l.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return Lesson{}, notFound("lesson", id)
	}
	return l, err
}

func (c *SQLCatalog) GetLessonsByModule(ctx context.Context, moduleID string) ([]Lesson, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id,module_id,title,position
		FROM lessons WHERE module_id=$1 ORDER BY position, id`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Lesson{}
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.ModuleID, &l.Title, &l.Order); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const quizCols = `id,module_id,title,kind,time_limit_minutes,passing_score_percent,max_attempts`

func scanQuiz(r rowScanner) (Quiz, error) {
	var q Quiz
	var kind string
	err := r.Scan(&q.ID, &q.ModuleID, &q.Title, &kind, &q.TimeLimitMinutes, &q.PassingScorePercent, &q.MaxAttempts)
	q.Kind = QuizKind(kind)
	return q, err
}

func (c *SQLCatalog) GetQuiz(ctx context.Context, id string, withQuestions bool) (Quiz, error) {
	q, err := scanQuiz(c.db.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, notFound("quiz", id)
	}
	if err != nil || !withQuestions {
		return q, err
	}
	q.Questions, err = c.questions(ctx, id)
	return q, err
}

func (c *SQLCatalog) questions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id,quiz_id,kind,prompt,points,position,required,answers_json
		FROM questions WHERE quiz_id=$1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var (
			qu      Question
			kind    string
			answers string
		)
		if err := rows.Scan(&qu.ID, &qu.QuizID, &kind, &qu.Prompt, &qu.Points, &qu.Order, &qu.Required, &answers); err != nil {
			return nil, err
		}
		qu.Kind = QuestionKind(kind)
		if err := json.Unmarshal([]byte(answers), &qu.Answers); err != nil {
			return nil, fmt.Errorf("question %s answers: %w", qu.ID, err)
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

func (c *SQLCatalog) GetQuizzesByModule(ctx context.Context, moduleID string) ([]Quiz, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE module_id=$1 ORDER BY id`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Bundle is the JSON document accepted by Import.
type Bundle struct {
	Courses []Course `json:"courses"`
	Modules []Module `json:"modules"`
	Lessons []Lesson `json:"lessons"`
	Quizzes []Quiz   `json:"quizzes"`
}

// Import upserts every entity of b in one transaction.
func (c *SQLCatalog) Import(ctx context.Context, b Bundle) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, co := range b.Courses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO courses (id,title,level,status) VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, level=EXCLUDED.level, status=EXCLUDED.status`,
			co.ID, co.Title, co.Level, co.Status); err != nil {
			return fmt.Errorf("course %s: %w", co.ID, err)
		}
	}
	for _, m := range b.Modules {
		if _, err := tx.ExecContext(ctx, `INSERT INTO modules (id,course_id,title,position,duration_minutes) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, title=EXCLUDED.title,
				position=EXCLUDED.position, duration_minutes=EXCLUDED.duration_minutes`,
			m.ID, m.CourseID, m.Title, m.Order, m.DurationMinutes); err != nil {
			return fmt.Errorf("module %s: %w", m.ID, err)
		}
	}
	for _, l := range b.Lessons {
		if _, err := tx.ExecContext(ctx, `INSERT INTO lessons (id,module_id,title,position) VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET module_id=EXCLUDED.module_id, title=EXCLUDED.title, position=EXCLUDED.position`,
			l.ID, l.ModuleID, l.Title, l.Order); err != nil {
			return fmt.Errorf("lesson %s: %w", l.ID, err)
		}
	}
	for _, q := range b.Quizzes {
		if !q.Kind.Valid() {
			return fmt.Errorf("quiz %s: unknown kind %q", q.ID, q.Kind)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes (`+quizCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET module_id=EXCLUDED.module_id, title=EXCLUDED.title, kind=EXCLUDED.kind,
				time_limit_minutes=EXCLUDED.time_limit_minutes, passing_score_percent=EXCLUDED.passing_score_percent,
				max_attempts=EXCLUDED.max_attempts`,
			q.ID, q.ModuleID, q.Title, string(q.Kind), q.TimeLimitMinutes, q.PassingScorePercent, q.MaxAttempts); err != nil {
			return fmt.Errorf("quiz %s: %w", q.ID, err)
		}
		for _, qu := range q.Questions {
			answers, err := json.Marshal(qu.Answers)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,quiz_id,kind,prompt,points,position,required,answers_json)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (id) DO UPDATE SET quiz_id=EXCLUDED.quiz_id, kind=EXCLUDED.kind, prompt=EXCLUDED.prompt,
					points=EXCLUDED.points, position=EXCLUDED.position, required=EXCLUDED.required,
					answers_json=EXCLUDED.answers_json`,
				qu.ID, q.ID, string(qu.Kind), qu.Prompt, qu.Points, qu.Order, qu.Required, string(answers)); err != nil {
				return fmt.Errorf("question %s: %w", qu.ID, err)
			}
		}
	}
	return tx.Commit()
}

// Load puts every entity of b into the memory catalog.
func (m *MemoryCatalog) Load(b Bundle) {
	for _, c := range b.Courses {
		m.PutCourse(c)
	}
	for _, mod := range b.Modules {
		m.PutModule(mod)
	}
	for _, l := range b.Lessons {
		m.PutLesson(l)
	}
	for _, q := range b.Quizzes {
		m.PutQuiz(q)
	}
}
