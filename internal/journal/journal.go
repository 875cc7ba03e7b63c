// Package journal 本地提交流水账（sqlite）。
// 记录每次提交的订单摘要与终态，供控制面查询历史交易。
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry 一条提交记录。
type Entry struct {
	ID        string // 本地提交 ID
	OrderHash string // 订单身份哈希
	RemoteID  string // 服务端分配的订单 ID（提交成功后才有）
	State     string // 流水线状态快照
	Cause     string // 失败原因（仅失败态）
	TokenS    string
	TokenB    string
	AmountS   string
	AmountB   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Journal sqlite 流水账。
type Journal struct {
	db *sql.DB
}

// Open 打开（必要时建表）。path 用 ":memory:" 可得到内存库。
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开流水账失败: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化流水账表失败: %w", err)
	}
	return &Journal{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	order_hash TEXT NOT NULL,
	remote_id  TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	cause      TEXT NOT NULL DEFAULT '',
	token_s    TEXT NOT NULL,
	token_b    TEXT NOT NULL,
	amount_s   TEXT NOT NULL,
	amount_b   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_hash ON submissions(order_hash);
`

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record 写入新提交记录。
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	now := time.Now().UTC()
	_, err := j.db.ExecContext(ctx, `
INSERT INTO submissions (id,order_hash,remote_id,state,cause,token_s,token_b,amount_s,amount_b,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`, e.ID, e.OrderHash, e.RemoteID, e.State, e.Cause, e.TokenS, e.TokenB, e.AmountS, e.AmountB,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// UpdateState 更新提交状态（以及可选的服务端 ID 与失败原因）。
func (j *Journal) UpdateState(ctx context.Context, id, state, remoteID, cause string) error {
	_, err := j.db.ExecContext(ctx, `
UPDATE submissions SET state=?, remote_id=?, cause=?, updated_at=? WHERE id=?
`, state, remoteID, cause, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// Get 按本地提交 ID 查询；不存在返回 nil。
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, `
SELECT id,order_hash,remote_id,state,cause,token_s,token_b,amount_s,amount_b,created_at,updated_at
FROM submissions WHERE id=?
`, id)
	return scanEntry(row)
}

// List 按时间倒序列出最近 limit 条记录。
func (j *Journal) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id,order_hash,remote_id,state,cause,token_s,token_b,amount_s,amount_b,created_at,updated_at
FROM submissions ORDER BY created_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var createdAt, updatedAt string
	if err := s.Scan(&e.ID, &e.OrderHash, &e.RemoteID, &e.State, &e.Cause,
		&e.TokenS, &e.TokenB, &e.AmountS, &e.AmountB, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}
