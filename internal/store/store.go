// Package store persists finished interviews and user accounts in
// SQLite. Live sessions are held in memory by the handler; only their
// final records land here.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxhire/voxhire/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interviews (
		id TEXT PRIMARY KEY,
		candidate_name TEXT NOT NULL,
		adaptive INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		overall_score REAL NOT NULL DEFAULT 0,
		recommendation TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS interview_questions (
		interview_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT '',
		expected_points TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (interview_id, position),
		FOREIGN KEY (interview_id) REFERENCES interviews(id)
	);

	CREATE TABLE IF NOT EXISTS responses (
		interview_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		transcript TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (interview_id, question_id),
		FOREIGN KEY (interview_id) REFERENCES interviews(id)
	);

	CREATE TABLE IF NOT EXISTS scores (
		interview_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		value REAL NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		strengths TEXT NOT NULL DEFAULT '[]',
		improvements TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (interview_id, question_id),
		FOREIGN KEY (interview_id) REFERENCES interviews(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'recruiter',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveInterview writes a finished interview and its questions, responses,
// and scores in one transaction.
func (s *Store) SaveInterview(iv model.Interview) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO interviews (id, candidate_name, adaptive, started_at, ended_at, overall_score, recommendation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.CandidateName, iv.Adaptive, iv.StartedAt, iv.EndedAt, iv.OverallScore, iv.Recommendation,
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}

	for i, q := range iv.Questions {
		points, err := json.Marshal(q.ExpectedPoints)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO interview_questions (interview_id, position, question_id, text, category, difficulty, expected_points)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			iv.ID, i, q.ID, q.Text, q.Category, q.Difficulty, string(points),
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}

	for _, r := range iv.Responses {
		_, err = tx.Exec(
			`INSERT INTO responses (interview_id, question_id, transcript, recorded_at, duration_ms)
			 VALUES (?, ?, ?, ?, ?)`,
			iv.ID, r.QuestionID, r.Transcript, r.RecordedAt, r.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert response %d: %w", r.QuestionID, err)
		}
	}

	for _, sc := range iv.Scores {
		strengths, err := json.Marshal(sc.Strengths)
		if err != nil {
			return err
		}
		improvements, err := json.Marshal(sc.Improvements)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO scores (interview_id, question_id, value, feedback, strengths, improvements)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			iv.ID, sc.QuestionID, sc.Value, sc.Feedback, string(strengths), string(improvements),
		)
		if err != nil {
			return fmt.Errorf("insert score %d: %w", sc.QuestionID, err)
		}
	}

	return tx.Commit()
}

// GetInterview loads one interview with all its detail rows, or nil if
// the ID is unknown.
func (s *Store) GetInterview(id string) (*model.Interview, error) {
	var iv model.Interview
	err := s.db.QueryRow(
		`SELECT id, candidate_name, adaptive, started_at, ended_at, overall_score, recommendation
		 FROM interviews WHERE id = ?`, id,
	).Scan(&iv.ID, &iv.CandidateName, &iv.Adaptive, &iv.StartedAt, &iv.EndedAt, &iv.OverallScore, &iv.Recommendation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT question_id, text, category, difficulty, expected_points
		 FROM interview_questions WHERE interview_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var q model.Question
		var points string
		if err := rows.Scan(&q.ID, &q.Text, &q.Category, &q.Difficulty, &points); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(points), &q.ExpectedPoints); err != nil {
			return nil, fmt.Errorf("decode expected_points for question %d: %w", q.ID, err)
		}
		iv.Questions = append(iv.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	respRows, err := s.db.Query(
		`SELECT question_id, transcript, recorded_at, duration_ms
		 FROM responses WHERE interview_id = ? ORDER BY recorded_at`, id,
	)
	if err != nil {
		return nil, err
	}
	defer respRows.Close()
	for respRows.Next() {
		var r model.Response
		var ms int64
		if err := respRows.Scan(&r.QuestionID, &r.Transcript, &r.RecordedAt, &ms); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		iv.Responses = append(iv.Responses, r)
	}
	if err := respRows.Err(); err != nil {
		return nil, err
	}

	scoreRows, err := s.db.Query(
		`SELECT question_id, value, feedback, strengths, improvements
		 FROM scores WHERE interview_id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var sc model.Score
		var strengths, improvements string
		if err := scoreRows.Scan(&sc.QuestionID, &sc.Value, &sc.Feedback, &strengths, &improvements); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(strengths), &sc.Strengths); err != nil {
			return nil, fmt.Errorf("decode strengths for question %d: %w", sc.QuestionID, err)
		}
		if err := json.Unmarshal([]byte(improvements), &sc.Improvements); err != nil {
			return nil, fmt.Errorf("decode improvements for question %d: %w", sc.QuestionID, err)
		}
		iv.Scores = append(iv.Scores, sc)
	}
	if err := scoreRows.Err(); err != nil {
		return nil, err
	}

	return &iv, nil
}

// ListInterviews returns summaries of all stored interviews, newest first.
func (s *Store) ListInterviews() ([]model.InterviewSummary, error) {
	rows, err := s.db.Query(
		`SELECT i.id, i.candidate_name, i.started_at, i.ended_at, i.overall_score, i.recommendation,
		        (SELECT COUNT(*) FROM interview_questions q WHERE q.interview_id = i.id)
		 FROM interviews i ORDER BY i.started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []model.InterviewSummary
	for rows.Next() {
		var sum model.InterviewSummary
		if err := rows.Scan(&sum.ID, &sum.CandidateName, &sum.StartedAt, &sum.EndedAt,
			&sum.OverallScore, &sum.Recommendation, &sum.QuestionCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteInterview removes an interview and its detail rows.
func (s *Store) DeleteInterview(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"scores", "responses", "interview_questions"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE interview_id = ?`, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM interviews WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// InterviewCount returns the total number of stored interviews.
func (s *Store) InterviewCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM interviews`).Scan(&count)
	return count, err
}

// InterviewStats aggregates the stored history for the dashboard.
// AverageScore covers scored interviews only; abandoned ones have no
// overall score and are counted separately.
type InterviewStats struct {
	Total           int                          `json:"total"`
	Scored          int                          `json:"scored"`
	AverageScore    float64                      `json:"average_score"`
	Recommendations map[model.Recommendation]int `json:"recommendations"`
	Categories      map[model.Category]int       `json:"categories"`
}

// Stats computes the dashboard aggregates.
func (s *Store) Stats() (InterviewStats, error) {
	stats := InterviewStats{
		Recommendations: make(map[model.Recommendation]int),
		Categories:      make(map[model.Category]int),
	}

	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COUNT(CASE WHEN recommendation != '' THEN 1 END),
		        COALESCE(AVG(CASE WHEN recommendation != '' THEN overall_score END), 0)
		 FROM interviews`,
	).Scan(&stats.Total, &stats.Scored, &stats.AverageScore)
	if err != nil {
		return stats, err
	}
	stats.AverageScore = model.Round1(stats.AverageScore)

	rows, err := s.db.Query(
		`SELECT recommendation, COUNT(*) FROM interviews
		 WHERE recommendation != '' GROUP BY recommendation`,
	)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.Recommendation
		var n int
		if err := rows.Scan(&rec, &n); err != nil {
			return stats, err
		}
		stats.Recommendations[rec] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	catRows, err := s.db.Query(
		`SELECT category, COUNT(*) FROM interview_questions GROUP BY category`,
	)
	if err != nil {
		return stats, err
	}
	defer catRows.Close()
	for catRows.Next() {
		var c model.Category
		var n int
		if err := catRows.Scan(&c, &n); err != nil {
			return stats, err
		}
		stats.Categories[c] = n
	}
	return stats, catRows.Err()
}
