package tx

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "TxRelay-Chain/internal/errors"
)

func TestServiceSubmitValidates(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8))
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{name: "missing name", req: CreateRequest{To: "0x1111111111111111111111111111111111111111"}},
		{name: "missing target and data", req: CreateRequest{Name: "empty"}},
		{name: "bad gas price", req: CreateRequest{Name: "priced", To: "0x1111111111111111111111111111111111111111", GasPrice: "fast"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Submit(ctx, tc.req)
			if err == nil {
				t.Fatal("期望校验失败")
			}
			if code := xerrors.CodeOf(err); code != CodeSubmissionValidation {
				t.Fatalf("期望错误码 %s, 实际 %s", CodeSubmissionValidation, code)
			}
		})
	}
}

func TestServiceSubmitEnqueues(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue)
	ctx := context.Background()

	sub, err := service.Submit(ctx, CreateRequest{
		Name:  "transfer",
		To:    "0x1111111111111111111111111111111111111111",
		Value: "1000",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("应自动生成提交 ID")
	}

	stored, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "transfer" || stored.Value != "1000" {
		t.Fatalf("落库内容异常: %+v", stored)
	}

	select {
	case id := <-queue.ch:
		if id != sub.ID {
			t.Fatalf("队列中的 ID 不一致: %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("提交未入队")
	}
}

func TestServiceSubmitIdempotentByID(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8))
	ctx := context.Background()

	first, err := service.Submit(ctx, CreateRequest{
		ID:   "fixed-id",
		Name: "transfer",
		To:   "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	second, err := service.Submit(ctx, CreateRequest{
		ID:   "fixed-id",
		Name: "another-name",
		To:   "0x2222222222222222222222222222222222222222",
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID || second.Name != "transfer" {
		t.Fatalf("重复提交应返回已有记录: %+v", second)
	}
}

func TestServiceWaitUntilCompleted(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, NewMemoryQueue(8))
	ctx := context.Background()

	sub, err := service.Submit(ctx, CreateRequest{
		Name: "transfer",
		To:   "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = store.ApplyUpdate(ctx, sub.ID, Update{
			Loading: boolPtr(false),
			Status:  statusPtr(StatusConfirmed),
		})
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	final, err := service.WaitUntilCompleted(waitCtx, sub.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusConfirmed {
		t.Fatalf("期望终态 confirmed, 实际 %q", final.Status)
	}

	// 永不完成的提交应在上下文超时后返回。
	other, err := service.Submit(ctx, CreateRequest{
		Name: "stuck",
		To:   "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	shortCtx, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if _, err := service.WaitUntilCompleted(shortCtx, other.ID, 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("期望超时错误, 实际 %v", err)
	}
}
