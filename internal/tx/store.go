package tx

import "context"

// Store 抽象了提交记录的持久化接口。
type Store interface {
	Create(ctx context.Context, sub *Submission) error
	Get(ctx context.Context, id string) (*Submission, error)
	// Claim 将提交标记为处理中，阻止重复执行。
	Claim(ctx context.Context, id string) (*Submission, error)
	// ApplyUpdate 将生命周期补丁合并进记录。
	ApplyUpdate(ctx context.Context, id string, update Update) error
	List(ctx context.Context, opts ListOptions) ([]*Submission, error)
	Stats(ctx context.Context, opts ListOptions) (SubmissionStats, error)
	Close() error
}
