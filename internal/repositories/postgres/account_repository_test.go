package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/asakaida/warehouse/internal/entities"
)

func TestAccountRepository_Upsert(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	entityRepo := NewPostgresEntityRepository(db)
	repo := NewPostgresAccountRepository(db)

	alice, _ := entityRepo.Upsert(ctx, "Alice")
	bob, _ := entityRepo.Upsert(ctx, "Bob")

	t.Run("正常系: 所有者なしで作成", func(t *testing.T) {
		account, err := repo.Upsert(ctx, "0xfree", nil, false)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if account.EntityID != nil {
			t.Errorf("Expected no owner, got %d", *account.EntityID)
		}
	})

	t.Run("正常系: 所有者なしのアカウントを取得する", func(t *testing.T) {
		account, err := repo.Upsert(ctx, "0xfree", &alice.ID, false)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !account.OwnedBy(alice.ID) {
			t.Errorf("Expected owner %d, got %v", alice.ID, account.EntityID)
		}
	})

	t.Run("正常系: 同じ住所は冪等", func(t *testing.T) {
		first, _ := repo.Upsert(ctx, "0xfree", nil, false)
		second, err := repo.Upsert(ctx, "0xfree", &alice.ID, false)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("Expected same account, got %d and %d", first.ID, second.ID)
		}
	})

	t.Run("異常系: 別の所有者への移動には再割当てが必要", func(t *testing.T) {
		_, err := repo.Upsert(ctx, "0xfree", &bob.ID, false)
		if !errors.Is(err, entities.ErrConflict) {
			t.Fatalf("Expected conflict, got: %v", err)
		}
		account, _ := repo.GetByAddress(ctx, "0xfree")
		if !account.OwnedBy(alice.ID) {
			t.Errorf("Owner changed by rejected write")
		}
	})

	t.Run("正常系: 再割当て", func(t *testing.T) {
		account, err := repo.Upsert(ctx, "0xfree", &bob.ID, true)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !account.OwnedBy(bob.ID) {
			t.Errorf("Expected owner %d", bob.ID)
		}
		owned, err := repo.ListByEntity(ctx, bob.ID)
		if err != nil || len(owned) != 1 {
			t.Errorf("ListByEntity() = %v, %v", owned, err)
		}
	})

	t.Run("異常系: 存在しないエンティティ", func(t *testing.T) {
		missing := int64(-42)
		if _, err := repo.Upsert(ctx, "0xorphan", &missing, false); !errors.Is(err, entities.ErrNotFound) {
			t.Errorf("Expected not found, got: %v", err)
		}
		if _, err := repo.GetByAddress(ctx, "0xorphan"); !errors.Is(err, entities.ErrNotFound) {
			t.Errorf("Account written despite failure: %v", err)
		}
	})
}

func TestAccountRepository_ConcurrentUpsertSingleRow(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewPostgresAccountRepository(db)

	const workers = 8
	ids := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := repo.Upsert(ctx, "0xshared", nil, false)
			if err != nil {
				t.Errorf("Upsert failed: %v", err)
				return
			}
			ids <- account.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Errorf("Expected a single account, got IDs %d and %d", first, id)
		}
	}
}

func TestAccountRepository_UpsertRacingDelete(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewPostgresAccountRepository(db)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := repo.Upsert(ctx, "0xchurn", nil, false); err != nil && !errors.Is(err, entities.ErrConflict) {
				t.Errorf("Upsert failed: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := repo.Delete(ctx, "0xchurn"); err != nil && !errors.Is(err, entities.ErrNotFound) {
				t.Errorf("Delete failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestAccountRepository_DeleteCascades(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewPostgresAccountRepository(db)
	project := seedProject(t, db, "0xdel")
	if _, err := NewPostgresAttributeRepository(db).Upsert(ctx, project.ID, "num_chains", mustEncode(t, entities.KindInteger, "2"), false); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	summary, err := repo.Delete(ctx, "0xdel")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	want := entities.CascadeSummary{Accounts: 1, Projects: 1, Attributes: 1}
	if *summary != want {
		t.Errorf("Delete() summary = %+v, want %+v", *summary, want)
	}
	if _, err := NewPostgresProjectRepository(db).Get(ctx, project.ID); !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("Project survived account deletion: %v", err)
	}
	if _, err := repo.Delete(ctx, "0xdel"); !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("Second delete error = %v, want not found", err)
	}
}
