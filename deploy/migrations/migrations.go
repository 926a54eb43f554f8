package migrations

import "embed"

// Files 包含 MySQL 存储的建表脚本，文件名形如 NNNN_name.sql，按版本号顺序执行。
//
//go:embed *.sql
var Files embed.FS
