package database_test

import (
	"context"
	"testing"
	"time"

	"classmirror/internal/model"
	"classmirror/internal/testutil"
)

func TestSQLiteDatabase_RefreshAssignments(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)

	org := seedUser(t, db, "classorg", model.RoleOrganization)
	repo := seedRepo(t, db, org, "hw1")

	modTime := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	err := db.UpsertFileCommits(ctx, []model.FileCommit{
		{RepoID: repo.ID, Path: "notebooks/hw1.ipynb", ModTime: modTime, SHA: sha("b1")},
		{RepoID: repo.ID, Path: "README.md", ModTime: modTime, SHA: sha("b2")},
	})
	if err != nil {
		t.Fatalf("UpsertFileCommits() error = %v", err)
	}

	if err := db.RefreshAssignments(ctx, repo.ID); err != nil {
		t.Fatalf("RefreshAssignments() error = %v", err)
	}
	// Replayed refresh keeps the same rows.
	if err := db.RefreshAssignments(ctx, repo.ID); err != nil {
		t.Fatalf("second RefreshAssignments() error = %v", err)
	}

	assignments, err := db.ListAssignments(ctx, repo.ID)
	if err != nil {
		t.Fatalf("ListAssignments() error = %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("assignments = %d, want 1 (notebooks only)", len(assignments))
	}
	if assignments[0].Path != "notebooks/hw1.ipynb" {
		t.Errorf("path = %q", assignments[0].Path)
	}
	if assignments[0].Name != "hw1" {
		t.Errorf("name = %q, want hw1", assignments[0].Name)
	}
}

func TestSQLiteDatabase_QuestionsAndResponses(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)

	org := seedUser(t, db, "classorg", model.RoleOrganization)
	alice := seedUser(t, db, "alice", model.RoleStudent)
	repo := seedRepo(t, db, org, "hw1")

	modTime := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if err := db.UpsertFileCommits(ctx, []model.FileCommit{
		{RepoID: repo.ID, Path: "hw1.ipynb", ModTime: modTime, SHA: sha("b1")},
	}); err != nil {
		t.Fatalf("UpsertFileCommits() error = %v", err)
	}
	if err := db.RefreshAssignments(ctx, repo.ID); err != nil {
		t.Fatalf("RefreshAssignments() error = %v", err)
	}
	assignments, _ := db.ListAssignments(ctx, repo.ID)
	assignment := assignments[0]

	questions := []model.AssignmentQuestion{
		{AssignmentID: assignment.ID, Position: 1, QuestionName: "Question 1", NotebookData: []byte(`{"source": "q1"}`)},
		{AssignmentID: assignment.ID, Position: 2, QuestionName: "Question 2", NotebookData: []byte(`{"source": "q2"}`)},
	}
	if err := db.UpsertAssignmentQuestions(ctx, questions); err != nil {
		t.Fatalf("UpsertAssignmentQuestions() error = %v", err)
	}

	// Conflict on (assignment, position) renames in place.
	questions[0].QuestionName = "Warmup"
	if err := db.UpsertAssignmentQuestions(ctx, questions[:1]); err != nil {
		t.Fatalf("second UpsertAssignmentQuestions() error = %v", err)
	}

	stored, err := db.ListAssignmentQuestions(ctx, assignment.ID)
	if err != nil {
		t.Fatalf("ListAssignmentQuestions() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("questions = %d, want 2", len(stored))
	}
	if stored[0].QuestionName != "Warmup" {
		t.Errorf("question 1 = %q, want Warmup", stored[0].QuestionName)
	}

	responses := []model.AssignmentQuestionResponse{
		{QuestionID: stored[0].ID, UserID: alice.ID, Status: "submitted", NotebookData: []byte(`{"answer": 1}`)},
	}
	if err := db.UpsertQuestionResponses(ctx, responses); err != nil {
		t.Fatalf("UpsertQuestionResponses() error = %v", err)
	}

	responses[0].Status = "graded"
	if err := db.UpsertQuestionResponses(ctx, responses); err != nil {
		t.Fatalf("second UpsertQuestionResponses() error = %v", err)
	}

	got, err := db.ListQuestionResponses(ctx, stored[0].ID)
	if err != nil {
		t.Fatalf("ListQuestionResponses() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("responses = %d, want 1", len(got))
	}
	if got[0].Status != "graded" {
		t.Errorf("status = %q, want graded", got[0].Status)
	}
}
