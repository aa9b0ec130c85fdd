package database

import (
	"context"
	"fmt"
	"path"
	"strings"

	"classmirror/internal/model"
)

// Assignment records are downstream of the file sync: they index the
// notebook files the dashboard grades, derived from a repository's file
// states rather than fetched from the source.

// RefreshAssignments upserts one assignment row per notebook file state
// in the repository, named after the file. Existing rows keep their id.
func (s *SQLiteDatabase) RefreshAssignments(ctx context.Context, repoID int64) error {
	fileCommits, err := s.ListFileCommits(ctx, repoID)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO assignment (repo_id, path, name)
		VALUES (?, ?, ?)
		ON CONFLICT (repo_id, path) DO UPDATE SET
			name = excluded.name`

	var rows [][]any
	for _, fc := range fileCommits {
		if !strings.HasSuffix(fc.Path, ".ipynb") {
			continue
		}
		name := strings.TrimSuffix(path.Base(fc.Path), ".ipynb")
		rows = append(rows, []any{repoID, fc.Path, name})
	}
	return s.execBatch(ctx, "refreshing assignments", query, rows)
}

func (s *SQLiteDatabase) ListAssignments(ctx context.Context, repoID int64) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, path, name
		FROM assignment WHERE repo_id = ?
		ORDER BY path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.RepoID, &a.Path, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// UpsertAssignmentQuestions inserts or updates questions keyed by
// (assignment, position).
func (s *SQLiteDatabase) UpsertAssignmentQuestions(ctx context.Context, questions []model.AssignmentQuestion) error {
	const query = `
		INSERT INTO assignment_question (assignment_id, position, question_name, notebook_data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (assignment_id, position) DO UPDATE SET
			question_name = excluded.question_name,
			notebook_data = excluded.notebook_data`

	rows := make([][]any, len(questions))
	for i, q := range questions {
		rows[i] = []any{q.AssignmentID, q.Position, q.QuestionName, q.NotebookData}
	}
	return s.execBatch(ctx, "upserting assignment questions", query, rows)
}

func (s *SQLiteDatabase) ListAssignmentQuestions(ctx context.Context, assignmentID int64) ([]model.AssignmentQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assignment_id, position, question_name, notebook_data
		FROM assignment_question WHERE assignment_id = ?
		ORDER BY position`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("listing assignment questions: %w", err)
	}
	defer rows.Close()

	var questions []model.AssignmentQuestion
	for rows.Next() {
		var q model.AssignmentQuestion
		if err := rows.Scan(&q.ID, &q.AssignmentID, &q.Position, &q.QuestionName, &q.NotebookData); err != nil {
			return nil, fmt.Errorf("scanning assignment question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpsertQuestionResponses inserts or updates submissions keyed by
// (question, user): one response per student per question.
func (s *SQLiteDatabase) UpsertQuestionResponses(ctx context.Context, responses []model.AssignmentQuestionResponse) error {
	const query = `
		INSERT INTO assignment_question_response (assignment_question_id, user_id, status, notebook_data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (assignment_question_id, user_id) DO UPDATE SET
			status = excluded.status,
			notebook_data = excluded.notebook_data`

	rows := make([][]any, len(responses))
	for i, r := range responses {
		rows[i] = []any{r.QuestionID, r.UserID, r.Status, r.NotebookData}
	}
	return s.execBatch(ctx, "upserting question responses", query, rows)
}

func (s *SQLiteDatabase) ListQuestionResponses(ctx context.Context, questionID int64) ([]model.AssignmentQuestionResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assignment_question_id, user_id, status, notebook_data
		FROM assignment_question_response WHERE assignment_question_id = ?
		ORDER BY user_id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("listing question responses: %w", err)
	}
	defer rows.Close()

	var responses []model.AssignmentQuestionResponse
	for rows.Next() {
		var r model.AssignmentQuestionResponse
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.UserID, &r.Status, &r.NotebookData); err != nil {
			return nil, fmt.Errorf("scanning question response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}
