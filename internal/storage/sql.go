package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore persists answers, questions and feedback in SQLite or PostgreSQL.
// Both dialects share the same schema; only placeholder syntax differs.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow(s.rebind("SELECT COUNT(*) FROM schema_version WHERE version = ?"), version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec(s.rebind("INSERT INTO schema_version (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *SQLStore) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func marshalStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(field, v string) ([]string, error) {
	out := []string{}
	if v == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", field, err)
	}
	return out, nil
}

// --- Answers ---

const answerColumns = `id, title, content, category, keywords, answer_type, data, is_active, created_at, updated_at`

func scanAnswer(sc scanner) (Answer, error) {
	var a Answer
	var keywords, createdAt, updatedAt string
	var data sql.NullString
	var active int
	if err := sc.Scan(&a.ID, &a.Title, &a.Content, &a.Category, &keywords, &a.AnswerType, &data, &active, &createdAt, &updatedAt); err != nil {
		return Answer{}, err
	}

	var err error
	if a.Keywords, err = unmarshalStrings("keywords", keywords); err != nil {
		return Answer{}, err
	}
	if data.Valid && data.String != "" {
		a.Data = json.RawMessage(data.String)
	}
	a.IsActive = active != 0
	if a.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Answer{}, err
	}
	if a.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Answer{}, err
	}
	return a, nil
}

func (s *SQLStore) CreateAnswer(ctx context.Context, in NewAnswer) (Answer, error) {
	keywords, err := marshalStrings(in.Keywords)
	if err != nil {
		return Answer{}, fmt.Errorf("encoding keywords: %w", err)
	}

	now := s.now()
	a := Answer{
		ID:         uuid.New().String(),
		Title:      in.Title,
		Content:    in.Content,
		Category:   in.Category,
		Keywords:   cloneStrings(in.Keywords),
		AnswerType: in.AnswerType,
		Data:       in.Data,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO answers (id, seq, title, content, category, keywords, answer_type, data, is_active, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM answers), ?, ?, ?, ?, ?, ?, 1, ?, ?)`),
		a.ID, a.Title, a.Content, a.Category, keywords, a.AnswerType, nullJSON(a.Data),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return Answer{}, err
	}
	return a, nil
}

func (s *SQLStore) GetAnswer(ctx context.Context, id string) (Answer, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+answerColumns+` FROM answers WHERE id = ?`), id)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) SetAnswerActive(ctx context.Context, id string, active bool) (Answer, error) {
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE answers SET is_active = ?, updated_at = ? WHERE id = ?`),
		flag, formatTime(s.now()), id)
	if err != nil {
		return Answer{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Answer{}, err
	}
	if n == 0 {
		return Answer{}, ErrNotFound
	}
	return s.GetAnswer(ctx, id)
}

func (s *SQLStore) CountAnswers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM answers").Scan(&n)
	return n, err
}

func (s *SQLStore) ActiveAnswers(ctx context.Context) ([]Answer, error) {
	return s.queryAnswers(ctx, `SELECT `+answerColumns+` FROM answers WHERE is_active = 1 ORDER BY seq ASC`)
}

func (s *SQLStore) AnswersByCategory(ctx context.Context, category string) ([]Answer, error) {
	return s.queryAnswers(ctx, `SELECT `+answerColumns+` FROM answers WHERE is_active = 1 AND category = ? ORDER BY seq ASC`, category)
}

func (s *SQLStore) SearchAnswers(ctx context.Context, query string) ([]Answer, error) {
	answers, err := s.ActiveAnswers(ctx)
	if err != nil {
		return nil, err
	}
	return filterSearch(answers, query), nil
}

func (s *SQLStore) queryAnswers(ctx context.Context, query string, args ...any) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Questions ---

const questionColumns = `id, question, context, status, matched_answer_id, created_at, updated_at`

func scanQuestion(sc scanner) (Question, error) {
	var q Question
	var qctx sql.NullString
	var status, createdAt, updatedAt string
	if err := sc.Scan(&q.ID, &q.Question, &qctx, &status, &q.MatchedAnswerID, &createdAt, &updatedAt); err != nil {
		return Question{}, err
	}
	q.Status = QuestionStatus(status)
	if qctx.Valid && qctx.String != "" {
		q.Context = json.RawMessage(qctx.String)
	}

	var err error
	if q.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Question{}, err
	}
	if q.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) CreateQuestion(ctx context.Context, text string, qctx json.RawMessage) (Question, error) {
	now := s.now()
	q := Question{
		ID:        uuid.New().String(),
		Question:  text,
		Context:   qctx,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO questions (id, seq, question, context, status, matched_answer_id, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM questions), ?, ?, ?, '', ?, ?)`),
		q.ID, q.Question, nullJSON(qctx), string(StatusPending), formatTime(now), formatTime(now),
	)
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+questionColumns+` FROM questions WHERE id = ?`), id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

// UpdateQuestionStatus moves a pending question to a terminal status inside a
// transaction so the pending check and the write cannot interleave.
func (s *SQLStore) UpdateQuestionStatus(ctx context.Context, id string, status QuestionStatus, matchedAnswerID string) (Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, fmt.Errorf("beginning status transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM questions WHERE id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, err
	}
	if err := checkTransition(QuestionStatus(current), status, matchedAnswerID); err != nil {
		return Question{}, fmt.Errorf("question %s %s → %s: %w", id, current, status, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE questions SET status = ?, matched_answer_id = ?, updated_at = ? WHERE id = ?`),
		string(status), matchedAnswerID, formatTime(s.now()), id); err != nil {
		return Question{}, err
	}
	if err := tx.Commit(); err != nil {
		return Question{}, fmt.Errorf("committing status update: %w", err)
	}
	return s.GetQuestion(ctx, id)
}

func (s *SQLStore) QuestionsByStatus(ctx context.Context, status QuestionStatus) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+questionColumns+` FROM questions WHERE status = ? ORDER BY seq ASC`), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

func (s *SQLStore) RecordMatch(ctx context.Context, questionID, answerID, confidence string) (QuestionMatch, error) {
	qm := QuestionMatch{
		ID:         uuid.New().String(),
		QuestionID: questionID,
		AnswerID:   answerID,
		Confidence: confidence,
		CreatedAt:  s.now(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO question_matches (id, question_id, answer_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		qm.ID, qm.QuestionID, qm.AnswerID, qm.Confidence, formatTime(qm.CreatedAt),
	)
	if err != nil {
		return QuestionMatch{}, err
	}
	return qm, nil
}

func (s *SQLStore) GetMatch(ctx context.Context, questionID string) (QuestionMatch, error) {
	var qm QuestionMatch
	var createdAt string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, question_id, answer_id, confidence, created_at
		FROM question_matches WHERE question_id = ?`), questionID,
	).Scan(&qm.ID, &qm.QuestionID, &qm.AnswerID, &qm.Confidence, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QuestionMatch{}, ErrNotFound
	}
	if err != nil {
		return QuestionMatch{}, err
	}
	if qm.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return QuestionMatch{}, err
	}
	return qm, nil
}

// --- Feedback ---

const feedbackColumns = `id, answer_id, question_id, question, sentiment, reasons, comment, created_at`

func scanFeedback(sc scanner) (Feedback, error) {
	var f Feedback
	var sentiment, reasons, createdAt string
	if err := sc.Scan(&f.ID, &f.AnswerID, &f.QuestionID, &f.Question, &sentiment, &reasons, &f.Comment, &createdAt); err != nil {
		return Feedback{}, err
	}
	f.Sentiment = Sentiment(sentiment)

	var err error
	if f.Reasons, err = unmarshalStrings("reasons", reasons); err != nil {
		return Feedback{}, err
	}
	if f.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Feedback{}, err
	}
	return f, nil
}

func (s *SQLStore) CreateFeedback(ctx context.Context, in NewFeedback) (Feedback, error) {
	reasons, err := marshalStrings(in.Reasons)
	if err != nil {
		return Feedback{}, fmt.Errorf("encoding reasons: %w", err)
	}
	f := Feedback{
		ID:         uuid.New().String(),
		AnswerID:   in.AnswerID,
		QuestionID: in.QuestionID,
		Question:   in.Question,
		Sentiment:  in.Sentiment,
		Reasons:    cloneStrings(in.Reasons),
		Comment:    in.Comment,
		CreatedAt:  s.now(),
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO feedback (id, seq, answer_id, question_id, question, sentiment, reasons, comment, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM feedback), ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.AnswerID, f.QuestionID, f.Question, string(f.Sentiment), reasons, f.Comment, formatTime(f.CreatedAt),
	)
	if err != nil {
		return Feedback{}, err
	}
	return f, nil
}

func (s *SQLStore) GetFeedback(ctx context.Context, id string) (Feedback, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`), id)
	f, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, ErrNotFound
	}
	return f, err
}

func (s *SQLStore) FeedbackForAnswer(ctx context.Context, answerID string) ([]Feedback, error) {
	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE answer_id = ? ORDER BY seq ASC`, answerID)
}

func (s *SQLStore) AllFeedback(ctx context.Context) ([]Feedback, error) {
	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM feedback ORDER BY seq ASC`)
}

func (s *SQLStore) queryFeedback(ctx context.Context, query string, args ...any) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}
