package tx

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "TxRelay-Chain/internal/errors"
)

// MemoryStore 以内存方式保存提交记录，主要用于测试和单机部署。
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]*Submission
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{submissions: make(map[string]*Submission)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, sub *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "submission 不能为空")
	}
	if sub.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提交 ID 不能为空")
	}
	if _, ok := m.submissions[sub.ID]; ok {
		return ErrSubmissionConflict
	}
	now := time.Now().Unix()
	if sub.CreatedAt == 0 {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

// Get 返回提交记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return cloneSubmission(sub), nil
}

// Claim 将提交标记为处理中。已走完生命周期的提交不允许重复执行。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	if sub.Status.IsTerminal() || sub.Status == StatusSubmitted {
		return cloneSubmission(sub), ErrSubmissionCompleted
	}
	if sub.Loading {
		return cloneSubmission(sub), ErrSubmissionConflict
	}
	sub.Loading = true
	sub.LastError = ""
	sub.ErrorCode = ""
	sub.UpdatedAt = time.Now().Unix()
	return cloneSubmission(sub), nil
}

// ApplyUpdate 将生命周期补丁合并进记录。
func (m *MemoryStore) ApplyUpdate(_ context.Context, id string, update Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	update.Apply(sub)
	sub.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的提交记录。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Submission, 0, len(m.submissions))
	for _, sub := range m.submissions {
		if !matchesListFilters(sub, opts) {
			continue
		}
		results = append(results, cloneSubmission(sub))
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if opts.Order == SortByUpdatedAsc {
			a, b = b, a
		}
		if a.UpdatedAt == b.UpdatedAt {
			if a.CreatedAt == b.CreatedAt {
				return a.ID > b.ID
			}
			return a.CreatedAt > b.CreatedAt
		}
		return a.UpdatedAt > b.UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return nil, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的提交数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (SubmissionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := SubmissionStats{}
	for _, sub := range m.submissions {
		if !matchesListFilters(sub, opts) {
			continue
		}
		stats.Total++
		switch sub.Status {
		case StatusSubmitted:
			stats.Submitted++
		case StatusConfirmed:
			stats.Confirmed++
		case StatusError:
			stats.Failed++
		default:
			stats.Building++
		}
		if sub.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = sub.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (sub.UpdatedAt != 0 && sub.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = sub.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func matchesListFilters(sub *Submission, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if sub.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Kind != "" && sub.Kind != opts.Kind {
		return false
	}
	if opts.Chain != "" && sub.Chain != opts.Chain {
		return false
	}
	if opts.UpdatedGTE > 0 && sub.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && sub.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
