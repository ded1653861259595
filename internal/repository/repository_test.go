package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/filevault/internal/config"
	"github.com/bigkaa/filevault/internal/database"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
)

// setupTestPool запускает PostgreSQL, применяет миграции и возвращает пул.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("filevault_test"),
		postgres.WithUsername("filevault"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     port.Int(),
		DBName:     "filevault_test",
		DBUser:     "filevault",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func newRecord(name, key, owner string, size int64, cat model.Category) *model.FileRecord {
	return &model.FileRecord{
		Name:      name,
		Extension: "bin",
		Category:  cat,
		SizeBytes: size,
		ObjectKey: key,
		URL:       "http://minio/files/" + key,
		OwnerID:   owner,
		AccountID: "acc-" + owner,
	}
}

// TestFileRepo_Lifecycle проверяет Create → List → Update → Delete с учётом видимости.
func TestFileRepo_Lifecycle(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewFileRepository(pool)
	ctx := context.Background()

	alice := model.Caller{ID: "alice", Email: "alice@example.com"}
	bob := model.Caller{ID: "bob", Email: "bob@example.com"}

	created, err := repo.Create(ctx, newRecord("report.pdf", "k-1", "alice", 2048, model.CategoryDocument))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("хранилище не назначило id/created_at: %+v", created)
	}
	if len(created.SharedWith) != 0 {
		t.Errorf("SharedWith = %v, ожидался пустой", created.SharedWith)
	}

	// Дубликат object_key
	if _, err := repo.Create(ctx, newRecord("copy.pdf", "k-1", "alice", 1, model.CategoryDocument)); !errors.Is(err, ErrConflict) {
		t.Errorf("ошибка = %v, ожидалась ErrConflict", err)
	}

	// Bob не видит файл до предоставления доступа
	bobSet, _ := query.Build(bob, query.Filters{})
	items, total, err := repo.List(ctx, bobSet)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("Bob видит %d файлов, ожидалось 0", total)
	}

	// Bob не может переименовать чужой файл
	bobRecord, _ := query.ForRecord(bob, created.ID)
	name := "hacked.pdf"
	if _, err := repo.Update(ctx, bobRecord, Patch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}

	// Alice делится с Bob
	aliceRecord, _ := query.ForRecord(alice, created.ID)
	shared := []string{"bob@example.com"}
	updated, err := repo.Update(ctx, aliceRecord, Patch{SharedWith: &shared})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.SharedWith) != 1 || updated.Name != "report.pdf" {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) && !updated.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("UpdatedAt уменьшился")
	}

	items, total, err = repo.List(ctx, bobSet)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || items[0].ID != created.ID {
		t.Errorf("Bob должен видеть 1 файл, получено total=%d", total)
	}

	// Поиск без учёта регистра
	searchSet, _ := query.Build(alice, query.Filters{SearchText: "REP"})
	_, total, err = repo.List(ctx, searchSet)
	if err != nil || total != 1 {
		t.Errorf("поиск REP: total=%d err=%v", total, err)
	}

	// Удаление с неверным object_key не находит запись
	if _, err := repo.Delete(ctx, aliceRecord.With(query.Equal(query.FieldObjectKey, "other"))); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}

	deleted, err := repo.Delete(ctx, aliceRecord.With(query.Equal(query.FieldObjectKey, "k-1")))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.ObjectKey != "k-1" {
		t.Errorf("deleted.ObjectKey = %q", deleted.ObjectKey)
	}

	if _, err := repo.Delete(ctx, aliceRecord); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// TestFileRepo_ListSortLimit проверяет сортировку, лимит и общее количество.
func TestFileRepo_ListSortLimit(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewFileRepository(pool)
	ctx := context.Background()

	for i, n := range []string{"b.png", "a.png", "c.mp4"} {
		cat := model.CategoryImage
		if n == "c.mp4" {
			cat = model.CategoryVideo
		}
		if _, err := repo.Create(ctx, newRecord(n, n, "alice", int64(100*(i+1)), cat)); err != nil {
			t.Fatalf("Create %s: %v", n, err)
		}
	}

	alice := model.Caller{ID: "alice", Email: "alice@example.com"}
	set, _ := query.Build(alice, query.Filters{
		Categories: []model.Category{model.CategoryImage},
		Sort:       "name-asc",
		Limit:      1,
	})
	items, total, err := repo.List(ctx, set)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, ожидалось 2", total)
	}
	if len(items) != 1 || items[0].Name != "a.png" {
		t.Errorf("items = %+v, ожидался a.png", items)
	}

	owner, _ := query.ForOwner("alice", 10000)
	all, total, err := repo.List(ctx, owner)
	if err != nil || total != 3 || len(all) != 3 {
		t.Errorf("ForOwner: total=%d len=%d err=%v", total, len(all), err)
	}

	bad, _ := query.Build(alice, query.Filters{Sort: "owner_id-asc"})
	if _, _, err := repo.List(ctx, bad); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("ошибка = %v, ожидалась ErrInvalidQuery", err)
	}
}
