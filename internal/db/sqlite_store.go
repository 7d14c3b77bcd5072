package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quentel/formulaire/internal/models"
	"github.com/quentel/formulaire/internal/services"
)

// SQLiteStore implements the persistence collaborators of the form engine:
// authoring storage, atomic response writes and aggregate buckets.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ services.FormStore       = (*SQLiteStore)(nil)
	_ services.SubmissionStore = (*SQLiteStore)(nil)
	_ services.AggregateStore  = (*SQLiteStore)(nil)
)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const timeLayout = time.RFC3339Nano

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeConfig(cfg models.QuestionConfig) (sql.NullString, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeConfig(ns sql.NullString) models.QuestionConfig {
	var cfg models.QuestionConfig
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return cfg
	}
	if err := json.Unmarshal([]byte(ns.String), &cfg); err != nil {
		return models.QuestionConfig{}
	}
	return cfg
}

// encodeValue flattens a tagged value into its kind tag plus the plain JSON
// form of the payload: string for text/option/date, number for numbers,
// array of labels for option sets. ISO 8601 for dates.
func encodeValue(v models.Value) (kind, payload string, err error) {
	var b []byte
	switch v.Kind {
	case models.ValueText, models.ValueOption:
		b, err = json.Marshal(v.Text)
	case models.ValueNumber:
		return string(v.Kind), strconv.FormatFloat(v.Number, 'g', -1, 64), nil
	case models.ValueDate:
		b, err = json.Marshal(v.Date.Format("2006-01-02"))
	case models.ValueOptionSet:
		b, err = json.Marshal(v.Options)
	default:
		return string(models.ValueNone), "null", nil
	}
	if err != nil {
		return "", "", err
	}
	return string(v.Kind), string(b), nil
}

func decodeValue(kind, payload string) (models.Value, error) {
	v := models.Value{Kind: models.ValueKind(kind)}
	switch v.Kind {
	case models.ValueText, models.ValueOption:
		if err := json.Unmarshal([]byte(payload), &v.Text); err != nil {
			return models.Value{}, err
		}
	case models.ValueNumber:
		n, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return models.Value{}, err
		}
		v.Number = n
	case models.ValueDate:
		var s string
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return models.Value{}, err
		}
		d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return models.Value{}, err
		}
		v.Date = d
	case models.ValueOptionSet:
		if err := json.Unmarshal([]byte(payload), &v.Options); err != nil {
			return models.Value{}, err
		}
	}
	return v, nil
}

func (s *SQLiteStore) InsertForm(f *models.Form) error {
	_, err := s.db.Exec(
		`INSERT INTO forms (id, owner_id, title, description, accepts_responses, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, toNullString(f.OwnerID), f.Title, toNullString(f.Description),
		boolToInt64(f.AcceptsResponses), encodeTime(f.CreatedAt), encodeTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

// GetForm loads the form with its questions in display order. Returns
// (nil, nil) when the form does not exist.
func (s *SQLiteStore) GetForm(id string) (*models.Form, error) {
	row := s.db.QueryRow(
		`SELECT id, owner_id, title, description, accepts_responses, created_at, updated_at
		 FROM forms WHERE id = ?`, id)
	var (
		f                  models.Form
		owner, desc        sql.NullString
		accepts            int64
		createdAt, updated string
	)
	if err := row.Scan(&f.ID, &owner, &f.Title, &desc, &accepts, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get form: %w", err)
	}
	f.OwnerID = owner.String
	f.Description = desc.String
	f.AcceptsResponses = int64ToBool(accepts)
	f.CreatedAt = decodeTime(createdAt)
	f.UpdatedAt = decodeTime(updated)

	questions, err := s.ListQuestions(id)
	if err != nil {
		return nil, err
	}
	f.Questions = questions

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM responses WHERE form_id = ?`, id).Scan(&f.ResponseCount); err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}
	return &f, nil
}

func (s *SQLiteStore) UpdateForm(f *models.Form) error {
	_, err := s.db.Exec(
		`UPDATE forms SET title = ?, description = ?, accepts_responses = ?, updated_at = ? WHERE id = ?`,
		f.Title, toNullString(f.Description), boolToInt64(f.AcceptsResponses), encodeTime(f.UpdatedAt), f.ID,
	)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	return nil
}

// DeleteForm removes the form and, through the schema's cascades, its
// questions, responses and answers. Aggregate buckets go explicitly.
func (s *SQLiteStore) DeleteForm(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(
		`DELETE FROM aggregates WHERE question_id IN (SELECT id FROM questions WHERE form_id = ?)`, id); err != nil {
		return fmt.Errorf("delete form aggregates: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM forms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) InsertQuestion(q *models.Question) error {
	cfg, err := encodeConfig(q.Config)
	if err != nil {
		return fmt.Errorf("encode question config: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, form_id, kind, title, description, required, position, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.FormID, string(q.Kind), q.Title, toNullString(q.Description),
		boolToInt64(q.Required), q.Order, cfg, encodeTime(q.CreatedAt), encodeTime(q.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetQuestion(id string) (*models.Question, error) {
	row := s.db.QueryRow(
		`SELECT id, form_id, kind, title, description, required, position, config, created_at, updated_at
		 FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var (
		q                  models.Question
		kind               string
		desc, cfg          sql.NullString
		required           int64
		createdAt, updated string
	)
	if err := row.Scan(&q.ID, &q.FormID, &kind, &q.Title, &desc, &required, &q.Order, &cfg, &createdAt, &updated); err != nil {
		return nil, err
	}
	q.Kind = models.QuestionKind(kind)
	q.Description = desc.String
	q.Required = int64ToBool(required)
	q.Config = decodeConfig(cfg)
	q.CreatedAt = decodeTime(createdAt)
	q.UpdatedAt = decodeTime(updated)
	return &q, nil
}

func (s *SQLiteStore) UpdateQuestion(q *models.Question) error {
	cfg, err := encodeConfig(q.Config)
	if err != nil {
		return fmt.Errorf("encode question config: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE questions SET title = ?, description = ?, required = ?, position = ?, config = ?, updated_at = ?
		 WHERE id = ?`,
		q.Title, toNullString(q.Description), boolToInt64(q.Required), q.Order, cfg, encodeTime(q.UpdatedAt), q.ID,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteQuestion(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM aggregates WHERE question_id = ?`, id); err != nil {
		return fmt.Errorf("delete question aggregate: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM questions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListQuestions(formID string) ([]*models.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, form_id, kind, title, description, required, position, config, created_at, updated_at
		 FROM questions WHERE form_id = ? ORDER BY position`, formID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var out []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveResponse writes the response and its answers in one transaction; a
// response is never visible half-written.
func (s *SQLiteStore) SaveResponse(ctx context.Context, r *models.Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO responses (id, form_id, respondent_id, submitted_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.FormID, toNullString(r.RespondentID), encodeTime(r.SubmittedAt),
	); err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	for _, ans := range r.Answers {
		kind, payload, err := encodeValue(ans.Value)
		if err != nil {
			return fmt.Errorf("encode answer value: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO answers (response_id, question_id, value_kind, value) VALUES (?, ?, ?, ?)`,
			r.ID, ans.QuestionID, kind, payload,
		); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListResponses(formID string) ([]*models.Response, error) {
	rows, err := s.db.Query(
		`SELECT id, form_id, respondent_id, submitted_at FROM responses
		 WHERE form_id = ? ORDER BY submitted_at DESC`, formID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()
	var out []*models.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if err := s.loadAnswers(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetResponse(id string) (*models.Response, error) {
	row := s.db.QueryRow(`SELECT id, form_id, respondent_id, submitted_at FROM responses WHERE id = ?`, id)
	r, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadAnswers(r); err != nil {
		return nil, err
	}
	return r, nil
}

func scanResponse(row rowScanner) (*models.Response, error) {
	var (
		r           models.Response
		respondent  sql.NullString
		submittedAt string
	)
	if err := row.Scan(&r.ID, &r.FormID, &respondent, &submittedAt); err != nil {
		return nil, err
	}
	r.RespondentID = respondent.String
	r.SubmittedAt = decodeTime(submittedAt)
	return &r, nil
}

func (s *SQLiteStore) loadAnswers(r *models.Response) error {
	rows, err := s.db.Query(
		`SELECT question_id, value_kind, value FROM answers WHERE response_id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var questionID, kind, payload string
		if err := rows.Scan(&questionID, &kind, &payload); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		value, err := decodeValue(kind, payload)
		if err != nil {
			return fmt.Errorf("decode answer value: %w", err)
		}
		r.Answers = append(r.Answers, models.Answer{QuestionID: questionID, Value: value})
	}
	return rows.Err()
}

// LoadAggregateBucket returns (nil, nil) when no bucket has been persisted
// for the question yet.
func (s *SQLiteStore) LoadAggregateBucket(questionID string) (*models.AggregateStats, error) {
	var raw string
	err := s.db.QueryRow(`SELECT stats FROM aggregates WHERE question_id = ?`, questionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load aggregate bucket: %w", err)
	}
	var stats models.AggregateStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("decode aggregate bucket: %w", err)
	}
	return &stats, nil
}

func (s *SQLiteStore) SaveAggregateBucket(questionID string, stats *models.AggregateStats) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode aggregate bucket: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO aggregates (question_id, stats) VALUES (?, ?)
		 ON CONFLICT(question_id) DO UPDATE SET stats = excluded.stats`,
		questionID, string(b),
	)
	if err != nil {
		return fmt.Errorf("save aggregate bucket: %w", err)
	}
	return nil
}
