package assignment

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestReassignAppliesCASAndAudits(t *testing.T) {
	store, mock := newMockStore(t)
	conversationID := uuid.New()
	assigneeID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE conversations").
		WithArgs(conversationID, &assigneeID, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "assignee_id", "status", "chatbot_active", "version", "updated_at", "old_assignee_id",
		}).AddRow(conversationID, assigneeID, "open", false, int64(6), time.Now(), nil))
	mock.ExpectExec("INSERT INTO assignment_audit").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	conv, err := store.Reassign(context.Background(), conversationID, &assigneeID, 5, "op-1", "taking over")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if conv.Version != 6 {
		t.Errorf("version = %d, want 6", conv.Version)
	}
	if conv.ChatbotActive {
		t.Error("chatbot should deactivate when a human is assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestReassignStaleVersionConflicts(t *testing.T) {
	store, mock := newMockStore(t)
	conversationID := uuid.New()
	assigneeID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE conversations").
		WithArgs(conversationID, &assigneeID, int64(5)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT id, assignee_id, status, chatbot_active, version, updated_at").
		WithArgs(conversationID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "assignee_id", "status", "chatbot_active", "version", "updated_at",
		}).AddRow(conversationID, nil, "open", true, int64(7), time.Now()))
	mock.ExpectRollback()

	_, err := store.Reassign(context.Background(), conversationID, &assigneeID, 5, "op-1", "")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.CurrentVersion != 7 {
		t.Errorf("current version = %d, want 7", conflict.CurrentVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestReassignClosedConversationRejected(t *testing.T) {
	store, mock := newMockStore(t)
	conversationID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE conversations").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT id, assignee_id, status, chatbot_active, version, updated_at").
		WithArgs(conversationID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "assignee_id", "status", "chatbot_active", "version", "updated_at",
		}).AddRow(conversationID, nil, "closed", false, int64(3), time.Now()))
	mock.ExpectRollback()

	_, err := store.Reassign(context.Background(), conversationID, nil, 3, "op-1", "")
	if !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("expected ErrConversationClosed, got %v", err)
	}
}

func TestReassignUnknownConversation(t *testing.T) {
	store, mock := newMockStore(t)
	conversationID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE conversations").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT id, assignee_id, status, chatbot_active, version, updated_at").
		WithArgs(conversationID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Reassign(context.Background(), conversationID, nil, 1, "op-1", "")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestGetAssignee(t *testing.T) {
	store, mock := newMockStore(t)
	assigneeID := uuid.New()

	mock.ExpectQuery("SELECT id, name, email, role, active").
		WithArgs(assigneeID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "active"}).
			AddRow(assigneeID, "Ava", "ava@example.com", "agent", true))

	a, err := store.GetAssignee(context.Background(), assigneeID)
	if err != nil {
		t.Fatalf("get assignee: %v", err)
	}
	if a.Name != "Ava" || !a.Active {
		t.Errorf("assignee = %+v", a)
	}
}
