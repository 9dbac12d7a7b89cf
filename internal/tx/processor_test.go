package tx

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// fakeRelayer 跳过链上交互，直接通过 Sink 驱动生命周期补丁。
type fakeRelayer struct {
	processed atomic.Int32
	failWith  error
}

func (f *fakeRelayer) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	req.Sink.emit(Update{Loading: boolPtr(true)})
	if _, err := req.Build(ctx); err != nil {
		req.Sink.emit(Update{
			Loading:   boolPtr(false),
			Status:    statusPtr(StatusError),
			Error:     strPtr(err.Error()),
			ErrorCode: strPtr(string(CodeBuildFailure)),
		})
		return nil, err
	}
	if f.failWith != nil {
		req.Sink.emit(Update{
			Loading:   boolPtr(false),
			Status:    statusPtr(StatusError),
			Error:     strPtr(f.failWith.Error()),
			ErrorCode: strPtr(string(CodeBroadcastFailure)),
		})
		return nil, f.failWith
	}
	hash := common.HexToHash("0xfeed")
	req.Sink.emit(Update{Status: statusPtr(StatusSubmitted), TxHash: strPtr(hash.Hex())})
	receipt := &ReceiptSummary{BlockNumber: 1, GasUsed: 21000, Status: 1}
	req.Sink.emit(Update{Loading: boolPtr(false), Status: statusPtr(StatusConfirmed), Receipt: receipt})
	f.processed.Add(1)
	return &Outcome{Hash: hash, Receipt: receipt}, nil
}

func TestProcessorHandlesConcurrentSubmissions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	relayer := &fakeRelayer{}

	service := NewService(store, queue)
	processor := NewProcessor(relayer, store, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		req := CreateRequest{
			Name: fmt.Sprintf("transfer-%d", i),
			To:   "0x1111111111111111111111111111111111111111",
		}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("提交失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(relayer.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("提交未能及时处理，已完成 %d", relayer.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorPersistsLifecycle(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	relayer := &fakeRelayer{}
	processor := NewProcessor(relayer, store, NewMemoryQueue(1))

	sub := &Submission{ID: "s1", Name: "transfer", To: "0x1111111111111111111111111111111111111111"}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, "s1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusConfirmed {
		t.Fatalf("期望状态 confirmed, 实际 %q", got.Status)
	}
	if got.Loading {
		t.Fatal("确认后 loading 应为 false")
	}
	if got.TxHash == "" || got.Receipt == nil {
		t.Fatalf("生命周期字段未落库: %+v", got)
	}
}

func TestProcessorMarksFailureWithoutRequeue(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	relayer := &fakeRelayer{failWith: errors.New("node unreachable")}
	processor := NewProcessor(relayer, store, NewMemoryQueue(1))

	if err := store.Create(ctx, &Submission{ID: "s1", Name: "transfer", To: "0x1111111111111111111111111111111111111111"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 生命周期失败已经落库，handler 不应再返回错误触发重投。
	if err := processor.handle(ctx, "s1"); err != nil {
		t.Fatalf("handle 不应返回错误: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusError {
		t.Fatalf("期望状态 error, 实际 %q", got.Status)
	}
	if got.LastError == "" || got.ErrorCode != string(CodeBroadcastFailure) {
		t.Fatalf("错误信息未落库: %+v", got)
	}
}

func TestProcessorSkipsCompletedSubmissions(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	relayer := &fakeRelayer{}
	processor := NewProcessor(relayer, store, NewMemoryQueue(1))

	if err := store.Create(ctx, &Submission{ID: "s1", Name: "done"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.ApplyUpdate(ctx, "s1", Update{Status: statusPtr(StatusConfirmed)}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	if err := processor.handle(ctx, "s1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if relayer.processed.Load() != 0 {
		t.Fatal("终态提交不应重复执行")
	}

	// 不存在的提交同样直接跳过。
	if err := processor.handle(ctx, "missing"); err != nil {
		t.Fatalf("handle missing: %v", err)
	}
}
