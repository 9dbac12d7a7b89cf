package tx

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "TxRelay-Chain/internal/errors"
	"TxRelay-Chain/pkg/logger"
)

// Service 负责提交的创建与查询。
type Service struct {
	store    Store
	producer Producer
}

// NewService 构造提交服务。
func NewService(store Store, producer Producer) *Service {
	return &Service{store: store, producer: producer}
}

// CreateRequest 描述一次提交创建请求。
type CreateRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	Chain    string `json:"chain,omitempty"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
	GasLimit uint64 `json:"gas_limit,omitempty"`
	GasPrice string `json:"gas_price,omitempty"`
}

// Submit 创建一个新的提交并推送到队列。
func (s *Service) Submit(ctx context.Context, req CreateRequest) (*Submission, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, xerrors.New(CodeSubmissionValidation, "提交名称不能为空")
	}
	if strings.TrimSpace(req.To) == "" && strings.TrimSpace(req.Data) == "" {
		return nil, xerrors.New(CodeSubmissionValidation, "提交缺少目标地址和调用数据")
	}
	if _, err := ParseGasPrice(req.GasPrice); err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交服务未初始化")
	}

	submissionID := strings.TrimSpace(req.ID)
	if submissionID != "" {
		existing, err := s.store.Get(ctx, submissionID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrSubmissionNotFound) {
			return nil, err
		}
	} else {
		submissionID = uuid.NewString()
	}

	sub := &Submission{
		ID:       submissionID,
		Name:     strings.TrimSpace(req.Name),
		Kind:     strings.TrimSpace(req.Kind),
		Chain:    strings.TrimSpace(req.Chain),
		To:       strings.TrimSpace(req.To),
		Value:    strings.TrimSpace(req.Value),
		Data:     strings.TrimSpace(req.Data),
		GasLimit: req.GasLimit,
		GasPrice: strings.TrimSpace(req.GasPrice),
	}
	if err := s.store.Create(ctx, sub); err != nil {
		if stdErrors.Is(err, ErrSubmissionConflict) {
			existing, getErr := s.store.Get(ctx, submissionID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrSubmissionNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, submissionID); err != nil {
		logger.L().Error("提交入队失败", slog.Any("error", err), slog.String("submission_id", submissionID))
		wrapped := xerrors.Wrap(CodeSubmissionPublish, err, "发布提交到队列失败")
		_ = s.store.ApplyUpdate(ctx, submissionID, Update{
			Loading:   boolPtr(false),
			Status:    statusPtr(StatusError),
			Error:     strPtr(wrapped.Error()),
			ErrorCode: strPtr(string(CodeSubmissionPublish)),
		})
		return nil, wrapped
	}
	logger.Audit().Info("提交入队成功",
		slog.String("submission_id", submissionID),
		slog.String("name", sub.Name),
		slog.String("chain", sub.Chain),
		slog.String("to", sub.To),
	)
	return sub, nil
}

// Get 返回指定提交的状态。
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的提交列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Submission, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的提交统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (SubmissionStats, error) {
	if s.store == nil {
		return SubmissionStats{}, xerrors.New(xerrors.CodeInitializationFailure, "提交存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询提交状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Submission, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sub, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.Status.IsTerminal() {
			return sub, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
