package tx

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	xerrors "TxRelay-Chain/internal/errors"
	"TxRelay-Chain/deploy/migrations"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig 描述 MySQL 存储的连接参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// MySQLStore 使用 MySQL 持久化提交记录。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接池并执行内嵌迁移。
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 schema_migrations 表失败")
	}

	applied := make(map[string]struct{})
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 schema_migrations 失败")
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移版本失败")
		}
		applied[version] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历迁移版本失败")
	}

	names, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "枚举迁移文件失败")
	}
	sort.Strings(names)

	for _, name := range names {
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return xerrors.New(xerrors.CodeStorageFailure, fmt.Sprintf("迁移文件名缺少版本前缀: %s", name))
		}
		if _, done := applied[version]; done {
			continue
		}
		content, err := migrations.Files.ReadFile(name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("读取迁移文件 %s 失败", name))
		}
		for _, statement := range strings.Split(string(content), ";") {
			statement = strings.TrimSpace(statement)
			if statement == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, statement); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("执行迁移 %s 失败", name))
			}
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, time.Now().Unix()); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("记录迁移版本 %s 失败", version))
		}
	}
	return nil
}

const submissionColumns = `id, name, kind, chain, to_addr, value_wei, call_data, gas_limit, gas_price,
    loading, status, gas_estimate, tx_hash, tx_hashes, receipt_json, raw_tx, last_error, error_code,
    created_at, updated_at`

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, sub *Submission) error {
	if sub == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "submission 不能为空")
	}
	if sub.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提交 ID 不能为空")
	}
	now := time.Now().Unix()
	if sub.CreatedAt == 0 {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	receiptJSON, hashesJSON, err := marshalSubmissionBlobs(sub)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO submissions (`+submissionColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.Kind, sub.Chain, sub.To, sub.Value, sub.Data, sub.GasLimit, sub.GasPrice,
		sub.Loading, string(sub.Status), sub.GasEstimate, sub.TxHash, hashesJSON, receiptJSON,
		sub.RawTx, sub.LastError, sub.ErrorCode, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrSubmissionConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入提交记录失败")
	}
	return nil
}

// Get 返回提交记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

// Claim 在单条 UPDATE 中完成抢占，避免多个 worker 重复执行同一提交。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Submission, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET loading = 1, last_error = '', error_code = '', updated_at = ?
         WHERE id = ? AND loading = 0 AND status = ''`,
		time.Now().Unix(), id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "抢占提交记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取抢占结果失败")
	}

	sub, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 {
		if sub.Status != "" {
			return sub, ErrSubmissionCompleted
		}
		return sub, ErrSubmissionConflict
	}
	return sub, nil
}

// ApplyUpdate 在事务内读出记录、合并补丁并写回。
func (s *MySQLStore) ApplyUpdate(ctx context.Context, id string, update Update) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer dbTx.Rollback()

	row := dbTx.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ? FOR UPDATE`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return err
	}

	update.Apply(sub)
	sub.UpdatedAt = time.Now().Unix()

	receiptJSON, hashesJSON, err := marshalSubmissionBlobs(sub)
	if err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, `UPDATE submissions SET
        loading = ?, status = ?, gas_estimate = ?, tx_hash = ?, tx_hashes = ?, receipt_json = ?,
        raw_tx = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ?`,
		sub.Loading, string(sub.Status), sub.GasEstimate, sub.TxHash, hashesJSON, receiptJSON,
		sub.RawTx, sub.LastError, sub.ErrorCode, sub.UpdatedAt, id); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写回提交补丁失败")
	}

	if err := dbTx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

// List 返回符合过滤条件的提交记录。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Submission, error) {
	opts.applyDefaults()

	where, args := buildListWhere(opts)
	order := "updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = "updated_at ASC, created_at ASC, id ASC"
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions` + where +
		` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提交列表失败")
	}
	defer rows.Close()

	var results []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历提交列表失败")
	}
	return results, nil
}

// Stats 统计符合过滤条件的提交数量与更新时间范围。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (SubmissionStats, error) {
	opts.applyDefaults()

	where, args := buildListWhere(opts)
	query := `SELECT status, COUNT(*), MIN(updated_at), MAX(updated_at)
        FROM submissions` + where + ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return SubmissionStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计提交失败")
	}
	defer rows.Close()

	stats := SubmissionStats{}
	for rows.Next() {
		var status string
		var count int
		var oldest, newest sql.NullInt64
		if err := rows.Scan(&status, &count, &oldest, &newest); err != nil {
			return SubmissionStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取统计结果失败")
		}
		stats.Total += count
		switch Status(status) {
		case StatusSubmitted:
			stats.Submitted += count
		case StatusConfirmed:
			stats.Confirmed += count
		case StatusError:
			stats.Failed += count
		default:
			stats.Building += count
		}
		if newest.Valid && newest.Int64 > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = newest.Int64
		}
		if oldest.Valid && (stats.OldestUpdatedAt == 0 || oldest.Int64 < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = oldest.Int64
		}
	}
	if err := rows.Err(); err != nil {
		return SubmissionStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 释放连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildListWhere(opts ListOptions) (string, []any) {
	var clauses []string
	var args []any
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.Chain != "" {
		clauses = append(clauses, "chain = ?")
		args = append(args, opts.Chain)
	}
	if opts.UpdatedGTE > 0 {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var status string
	var hashesJSON, receiptJSON sql.NullString
	var callData, rawTx, lastError sql.NullString
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.Kind, &sub.Chain, &sub.To, &sub.Value, &callData,
		&sub.GasLimit, &sub.GasPrice, &sub.Loading, &status, &sub.GasEstimate,
		&sub.TxHash, &hashesJSON, &receiptJSON, &rawTx, &lastError, &sub.ErrorCode,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取提交记录失败")
	}
	sub.Status = Status(status)
	sub.Data = callData.String
	sub.RawTx = rawTx.String
	sub.LastError = lastError.String
	if hashesJSON.Valid && hashesJSON.String != "" {
		if err := json.Unmarshal([]byte(hashesJSON.String), &sub.TxHashes); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析交易哈希列表失败")
		}
	}
	if receiptJSON.Valid && receiptJSON.String != "" {
		var receipt ReceiptSummary
		if err := json.Unmarshal([]byte(receiptJSON.String), &receipt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析回执摘要失败")
		}
		sub.Receipt = &receipt
	}
	return &sub, nil
}

func marshalSubmissionBlobs(sub *Submission) (receiptJSON, hashesJSON string, err error) {
	if sub.Receipt != nil {
		encoded, merr := json.Marshal(sub.Receipt)
		if merr != nil {
			return "", "", xerrors.Wrap(xerrors.CodeStorageFailure, merr, "序列化回执摘要失败")
		}
		receiptJSON = string(encoded)
	}
	if len(sub.TxHashes) > 0 {
		encoded, merr := json.Marshal(sub.TxHashes)
		if merr != nil {
			return "", "", xerrors.Wrap(xerrors.CodeStorageFailure, merr, "序列化交易哈希列表失败")
		}
		hashesJSON = string(encoded)
	}
	return receiptJSON, hashesJSON, nil
}

func isDuplicateEntry(err error) bool {
	// MySQL error 1062: duplicate entry for key.
	return err != nil && strings.Contains(err.Error(), "Error 1062")
}

var _ Store = (*MySQLStore)(nil)
