package tx

// SubmissionStats 聚合了提交状态的统计信息，常用于仪表盘或健康检查。
type SubmissionStats struct {
	Total           int   `json:"total"`
	Building        int   `json:"building"`
	Submitted       int   `json:"submitted"`
	Confirmed       int   `json:"confirmed"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}
