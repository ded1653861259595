package action

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// mockExecutor — мок исполнителя действий.
type mockExecutor struct {
	renameFn func(ctx context.Context, fileID, baseName, ext string) (*model.FileRecord, error)
	accessFn func(ctx context.Context, fileID string, emails []string) (*model.FileRecord, error)
	deleteFn func(ctx context.Context, fileID, objectKey string) error
}

func (m *mockExecutor) Rename(ctx context.Context, fileID, baseName, ext string) (*model.FileRecord, error) {
	return m.renameFn(ctx, fileID, baseName, ext)
}

func (m *mockExecutor) UpdateAccess(ctx context.Context, fileID string, emails []string) (*model.FileRecord, error) {
	return m.accessFn(ctx, fileID, emails)
}

func (m *mockExecutor) Delete(ctx context.Context, fileID, objectKey string) error {
	return m.deleteFn(ctx, fileID, objectKey)
}

func testRecord() *model.FileRecord {
	return &model.FileRecord{
		ID:         "f1",
		Name:       "report.pdf",
		Extension:  "pdf",
		Category:   model.CategoryDocument,
		ObjectKey:  "k1",
		SharedWith: []string{"bob@example.com", "carol@example.com"},
	}
}

func mustOpen(t *testing.T, c *Controller, kind Kind) {
	t.Helper()
	if err := c.Select(kind); err != nil {
		t.Fatalf("Select(%s): %v", kind, err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestNew_InitialState(t *testing.T) {
	c := New(testRecord(), &mockExecutor{})
	snap := c.Snapshot()

	if snap.State != StateIdle {
		t.Errorf("State = %s, ожидалось idle", snap.State)
	}
	if snap.Name != "report" {
		t.Errorf("Name = %q, ожидалось report", snap.Name)
	}
	if snap.ModalOpen || snap.Loading || snap.Action != "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRename_Success(t *testing.T) {
	var gotBase, gotExt string
	exec := &mockExecutor{renameFn: func(_ context.Context, id, base, ext string) (*model.FileRecord, error) {
		gotBase, gotExt = base, ext
		r := testRecord()
		r.Name = base + "." + ext
		return r, nil
	}}
	c := New(testRecord(), exec)
	mustOpen(t, c, KindRename)

	if snap := c.Snapshot(); snap.State != StateConfirming || !snap.ModalOpen {
		t.Fatalf("после Open: %+v", snap)
	}
	if err := c.SetName("Q3-report"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotBase != "Q3-report" || gotExt != "pdf" {
		t.Errorf("Rename(%q, %q)", gotBase, gotExt)
	}
	snap := c.Snapshot()
	if snap.State != StateIdle || snap.ModalOpen || snap.Action != "" {
		t.Errorf("после успеха: %+v", snap)
	}
	if snap.Name != "Q3-report" {
		t.Errorf("Name = %q, ожидалось базовое имя обновлённой записи", snap.Name)
	}
	if snap.Record.Name != "Q3-report.pdf" {
		t.Errorf("Record.Name = %q", snap.Record.Name)
	}
}

func TestSelect_NormalizesKindCase(t *testing.T) {
	var renamed, shared bool
	exec := &mockExecutor{
		renameFn: func(_ context.Context, _, base, ext string) (*model.FileRecord, error) {
			renamed = true
			r := testRecord()
			r.Name = base + "." + ext
			return r, nil
		},
		accessFn: func(_ context.Context, _ string, emails []string) (*model.FileRecord, error) {
			shared = true
			r := testRecord()
			r.SharedWith = emails
			return r, nil
		},
	}

	c := New(testRecord(), exec)
	mustOpen(t, c, Kind("RENAME"))
	if snap := c.Snapshot(); snap.Action != KindRename {
		t.Fatalf("Action = %q, ожидалось rename", snap.Action)
	}
	if err := c.SetName("Q3"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !renamed {
		t.Error("Rename не вызван")
	}

	c = New(testRecord(), exec)
	mustOpen(t, c, Kind("Share"))
	snap := c.Snapshot()
	if snap.Action != KindShare {
		t.Fatalf("Action = %q, ожидалось share", snap.Action)
	}
	if len(snap.Emails) != 2 {
		t.Errorf("Emails = %v, ожидались текущие адреса записи", snap.Emails)
	}
	if err := c.SetEmails([]string{"dave@example.com"}); err != nil {
		t.Fatalf("SetEmails: %v", err)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !shared {
		t.Error("UpdateAccess не вызван")
	}
}

func TestSubmit_FailureReturnsToConfirming(t *testing.T) {
	storeErr := errors.New("store down")
	exec := &mockExecutor{renameFn: func(context.Context, string, string, string) (*model.FileRecord, error) {
		return nil, storeErr
	}}
	c := New(testRecord(), exec)
	mustOpen(t, c, KindRename)
	_ = c.SetName("new")

	if err := c.Submit(context.Background()); !errors.Is(err, storeErr) {
		t.Fatalf("Submit: ошибка = %v, ожидалась storeErr", err)
	}

	snap := c.Snapshot()
	if snap.State != StateConfirming {
		t.Errorf("State = %s, ожидалось confirming", snap.State)
	}
	if !errors.Is(snap.Err, storeErr) {
		t.Errorf("Err = %v", snap.Err)
	}
	if !snap.ModalOpen {
		t.Error("диалог должен остаться открытым")
	}
	if snap.Name != "new" {
		t.Errorf("Name = %q, кандидат должен сохраниться", snap.Name)
	}
}

func TestSubmit_SecondCallWhileSubmittingIsNoop(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32

	exec := &mockExecutor{deleteFn: func(context.Context, string, string) error {
		calls.Add(1)
		close(entered)
		<-release
		return nil
	}}
	c := New(testRecord(), exec)
	mustOpen(t, c, KindDelete)

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("исполнитель не вызван")
	}

	if snap := c.Snapshot(); snap.State != StateSubmitting || !snap.Loading {
		t.Errorf("во время отправки: %+v", snap)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Errorf("повторный Submit: %v, ожидался no-op", err)
	}
	if err := c.Cancel(); err == nil {
		t.Error("Cancel во время Submitting должен быть отклонён")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("исполнитель вызван %d раз, ожидался 1", calls.Load())
	}

	snap := c.Snapshot()
	if snap.Record != nil {
		t.Error("после удаления Record должен быть nil")
	}
	if err := c.Select(KindRename); err == nil {
		t.Error("Select после удаления должен вернуть ошибку")
	}
}

func TestShare_SetEmailsAndRemove(t *testing.T) {
	var sent [][]string
	exec := &mockExecutor{accessFn: func(_ context.Context, _ string, emails []string) (*model.FileRecord, error) {
		sent = append(sent, emails)
		r := testRecord()
		r.SharedWith = emails
		return r, nil
	}}
	c := New(testRecord(), exec)
	mustOpen(t, c, KindShare)

	// При выборе share кандидат заполняется текущим списком
	if snap := c.Snapshot(); len(snap.Emails) != 2 {
		t.Fatalf("Emails = %v, ожидались текущие адреса", snap.Emails)
	}

	if err := c.RemoveEmail(context.Background(), "bob@example.com"); err != nil {
		t.Fatalf("RemoveEmail: %v", err)
	}
	if len(sent) != 1 || len(sent[0]) != 1 || sent[0][0] != "carol@example.com" {
		t.Errorf("отправлено %v, ожидался остаток [carol@example.com]", sent)
	}
	snap := c.Snapshot()
	if snap.State != StateIdle || len(snap.Emails) != 0 {
		t.Errorf("после успеха: %+v", snap)
	}
	if len(snap.Record.SharedWith) != 1 {
		t.Errorf("Record.SharedWith = %v", snap.Record.SharedWith)
	}

	mustOpen(t, c, KindShare)
	if err := c.SetEmails([]string{"dave@example.com"}); err != nil {
		t.Fatalf("SetEmails: %v", err)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(sent) != 2 || sent[1][0] != "dave@example.com" {
		t.Errorf("отправлено %v", sent)
	}
}

func TestCancel(t *testing.T) {
	c := New(testRecord(), &mockExecutor{})

	if err := c.Select(KindRename); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel из ActionSelected: %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Error("ожидалось idle")
	}

	mustOpen(t, c, KindRename)
	_ = c.SetName("draft")
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel из Confirming: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateIdle || snap.ModalOpen || snap.Name != "report" {
		t.Errorf("после Cancel: %+v", snap)
	}

	// Cancel в Idle — no-op
	if err := c.Cancel(); err != nil {
		t.Errorf("Cancel в Idle: %v", err)
	}
}

func TestDetails_DismissOnly(t *testing.T) {
	c := New(testRecord(), &mockExecutor{})
	mustOpen(t, c, KindDetails)

	var te *TransitionError
	if err := c.Submit(context.Background()); !errors.As(err, &te) || te.Code != CodeInvalidAction {
		t.Errorf("Submit для details: ошибка = %v, ожидался INVALID_ACTION", err)
	}
	if err := c.Dismiss(); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Error("ожидалось idle")
	}

	mustOpen(t, c, KindRename)
	if err := c.Dismiss(); err == nil {
		t.Error("Dismiss для rename должен быть отклонён")
	}
}

func TestInvalidTransitions(t *testing.T) {
	c := New(testRecord(), &mockExecutor{})

	var te *TransitionError
	if err := c.Open(); !errors.As(err, &te) || te.Code != CodeInvalidTransition {
		t.Errorf("Open из Idle: %v", err)
	}
	if err := c.Submit(context.Background()); err == nil {
		t.Error("Submit из Idle должен быть отклонён")
	}
	if err := c.SetName("x"); err == nil {
		t.Error("SetName из Idle должен быть отклонён")
	}
	if err := c.Select(Kind("download")); !errors.As(err, &te) || te.Code != CodeInvalidAction {
		t.Errorf("Select(download): %v", err)
	}

	mustOpen(t, c, KindRename)
	if err := c.SetEmails([]string{"a@b"}); err == nil {
		t.Error("SetEmails для rename должен быть отклонён")
	}
	if err := c.Select(KindShare); err == nil {
		t.Error("Select из Confirming должен быть отклонён")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"rename", "SHARE", "delete", "details"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q): %v", s, err)
		}
	}
	if _, err := ParseKind("move"); err == nil {
		t.Error("ParseKind(move) должен вернуть ошибку")
	}
}
