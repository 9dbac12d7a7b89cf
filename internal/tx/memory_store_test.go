package tx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub := &Submission{ID: "s1", Name: "transfer", To: "0x1111111111111111111111111111111111111111"}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Submission{ID: "s1", Name: "dup"}); !errors.Is(err, ErrSubmissionConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	claimed, err := store.Claim(ctx, "s1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed.Loading {
		t.Fatal("claimed submission should be loading")
	}

	if _, err := store.Claim(ctx, "s1"); !errors.Is(err, ErrSubmissionConflict) {
		t.Fatalf("expected conflict on double claim, got %v", err)
	}

	if err := store.ApplyUpdate(ctx, "s1", Update{
		Loading: boolPtr(false),
		Status:  statusPtr(StatusConfirmed),
		Receipt: &ReceiptSummary{BlockNumber: 10, GasUsed: 21000, Status: 1},
	}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	if _, err := store.Claim(ctx, "s1"); !errors.Is(err, ErrSubmissionCompleted) {
		t.Fatalf("expected completed on terminal claim, got %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusConfirmed || got.Receipt == nil || got.Receipt.BlockNumber != 10 {
		t.Fatalf("unexpected state: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreClaimClearsPreviousError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Submission{ID: "s1", Name: "retry"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.ApplyUpdate(ctx, "s1", Update{
		Loading:   boolPtr(false),
		Error:     strPtr("temporary failure"),
		ErrorCode: strPtr(string(CodeBuildFailure)),
	}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	claimed, err := store.Claim(ctx, "s1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.LastError != "" || claimed.ErrorCode != "" {
		t.Fatalf("claim should clear previous error, got %q/%q", claimed.LastError, claimed.ErrorCode)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	subs := []*Submission{
		{ID: "s1", Name: "n1", Kind: "transfer", Chain: "dev"},
		{ID: "s2", Name: "n2", Kind: "transfer", Chain: "dev"},
		{ID: "s3", Name: "n3", Kind: "deploy", Chain: "testnet"},
	}
	for _, sub := range subs {
		if err := store.Create(ctx, sub); err != nil {
			t.Fatalf("create %s: %v", sub.ID, err)
		}
	}

	if err := store.ApplyUpdate(ctx, "s2", Update{Status: statusPtr(StatusError), Error: strPtr("boom")}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if err := store.ApplyUpdate(ctx, "s3", Update{Status: statusPtr(StatusConfirmed)}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	store.mu.Lock()
	store.submissions["s1"].UpdatedAt = base.Unix()
	store.submissions["s2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.submissions["s3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(all))
	}
	if all[0].ID != "s3" {
		t.Fatalf("expected newest submission first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusError)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "s2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	transfers, err := store.List(ctx, buildListOptions([]ListOption{WithKind("transfer"), WithChain("dev")}))
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 submissions to match since filter, got %d", len(recent))
	}

	asc, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list asc: %v", err)
	}
	if asc[0].ID != "s1" {
		t.Fatalf("expected oldest submission first, got %s", asc[0].ID)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, sub := range []*Submission{
		{ID: "s1", Name: "n1"},
		{ID: "s2", Name: "n2"},
		{ID: "s3", Name: "n3"},
		{ID: "s4", Name: "n4"},
	} {
		if err := store.Create(ctx, sub); err != nil {
			t.Fatalf("create %s: %v", sub.ID, err)
		}
	}
	if err := store.ApplyUpdate(ctx, "s2", Update{Status: statusPtr(StatusSubmitted)}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if err := store.ApplyUpdate(ctx, "s3", Update{Status: statusPtr(StatusConfirmed)}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if err := store.ApplyUpdate(ctx, "s4", Update{Status: statusPtr(StatusError)}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Building != 1 || stats.Submitted != 1 || stats.Confirmed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt == 0 || stats.OldestUpdatedAt == 0 {
		t.Fatalf("expected update timestamps, got %+v", stats)
	}
}
