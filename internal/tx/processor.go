package tx

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "TxRelay-Chain/internal/errors"
	"TxRelay-Chain/internal/observability/alerting"
	"TxRelay-Chain/internal/observability/metrics"
	"TxRelay-Chain/pkg/logger"
)

// Relayer 定义处理器所需的提交执行能力。
type Relayer interface {
	Submit(ctx context.Context, req SubmitRequest) (*Outcome, error)
}

// Processor 负责从队列消费提交并交给 Relay 执行。
type Processor struct {
	relayer     Relayer
	store       Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = log
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(relayer Relayer, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		relayer:     relayer,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动提交处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置提交消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, submissionID string) error {
	if p.store == nil || p.relayer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	sub, err := p.store.Claim(ctx, submissionID)
	if err != nil {
		if stdErrors.Is(err, ErrSubmissionNotFound) || stdErrors.Is(err, ErrSubmissionCompleted) || stdErrors.Is(err, ErrSubmissionConflict) {
			p.logDebug("跳过提交", slog.String("submission_id", submissionID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取提交失败", slog.Any("error", err), slog.String("submission_id", submissionID))
		p.emitAlert(ctx, &Submission{ID: submissionID}, xerrors.CodeOf(err), err, "claim")
		return err
	}

	outcome, submitErr := p.relayer.Submit(ctx, SubmitRequest{
		Name:     sub.Name,
		Kind:     sub.Kind,
		Build:    PayloadBuilder(sub.To, sub.Value, sub.Data, sub.GasLimit),
		GasPrice: sub.GasPrice,
		Sink:     p.persistSink(sub.ID),
	})
	if submitErr != nil {
		// 生命周期失败已经通过补丁落库，这里只记录与告警，不再重投。
		code := xerrors.CodeOf(submitErr)
		logger.Audit().Warn("提交执行失败",
			slog.String("submission_id", sub.ID),
			slog.String("name", sub.Name),
			slog.String("error", submitErr.Error()),
			slog.String("error_code", string(code)),
		)
		p.emitAlert(ctx, sub, code, submitErr, "lifecycle")
		metrics.ObserveSubmission(sub.Chain, string(StatusError))
		return nil
	}
	metrics.ObserveSubmission(sub.Chain, string(StatusConfirmed))

	logger.Audit().Info("提交执行成功",
		slog.String("submission_id", sub.ID),
		slog.String("name", sub.Name),
		slog.String("tx_hash", outcome.Hash.Hex()),
		slog.Uint64("gas_used", outcome.Receipt.GasUsed),
	)
	return nil
}

// persistSink 将生命周期补丁写入存储，与直接调用方的 UI Sink 共用一套补丁格式。
func (p *Processor) persistSink(submissionID string) Sink {
	return func(update Update) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.store.ApplyUpdate(ctx, submissionID, update); err != nil {
			logger.L().Error("写入提交补丁失败",
				slog.Any("error", err),
				slog.String("submission_id", submissionID),
			)
		}
	}
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, sub *Submission, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || sub == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if !attrs.Alert {
		return
	}
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	event := alerting.Event{
		Code:         code,
		Message:      message,
		Severity:     attrs.Severity,
		SubmissionID: sub.ID,
		TxHash:       sub.TxHash,
		Chain:        sub.Chain,
		Metadata:     metadata,
		OccurredAt:   time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("submission_id", sub.ID),
			slog.String("stage", stage),
		)
	}
}
