package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"options-trader/internal/store"
)

// ErrNotFound 表示目录中没有匹配的合约，属于校验错误，不发起对账。
var ErrNotFound = errors.New("catalog: security not found")

// Catalog 提供本地期权合约目录的查询能力。
// 目录表来自券商的合约主数据导出，按标准化符号与到期日检索。
type Catalog struct {
	db     *sql.DB
	logger *zap.Logger
}

// New 初始化合约目录，保证表结构存在。
func New(st *store.Store, logger *zap.Logger) (*Catalog, error) {
	if st == nil {
		return nil, errors.New("catalog: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Catalog{
		db:     st.DB(),
		logger: logger,
	}

	if err := c.initSchema(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS options (
	SECURITY_ID TEXT NOT NULL,
	SYMBOL_NAME TEXT NOT NULL,
	SM_EXPIRY_DATE TEXT NOT NULL,
	PRIMARY KEY (SECURITY_ID)
);
CREATE INDEX IF NOT EXISTS idx_options_symbol ON options(SYMBOL_NAME);
`
	if _, err := c.db.Exec(stmt); err != nil {
		return fmt.Errorf("catalog: 初始化表失败: %w", err)
	}
	return nil
}

// ResolveSecurity 按标准化符号与到期日解析合约标识。
// 符号比较忽略大小写、首尾空白与连字符，到期日按日期部分比较。
func (c *Catalog) ResolveSecurity(ctx context.Context, symbol string, expiry time.Time) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("%w: 符号为空", ErrNotFound)
	}

	query := `
SELECT SECURITY_ID FROM options
WHERE LOWER(TRIM(REPLACE(SYMBOL_NAME, '-', ''))) = LOWER(TRIM(REPLACE(?, '-', '')))
AND DATE(SM_EXPIRY_DATE) = ?
LIMIT 1`

	var securityID string
	err := c.db.QueryRowContext(ctx, query, symbol, expiry.Format("2006-01-02")).Scan(&securityID)
	if errors.Is(err, sql.ErrNoRows) {
		c.logger.Warn("目录中未找到合约",
			zap.String("symbol", symbol),
			zap.String("expiry", expiry.Format("2006-01-02")),
		)
		return "", fmt.Errorf("%w: %s@%s", ErrNotFound, symbol, expiry.Format("2006-01-02"))
	}
	if err != nil {
		return "", fmt.Errorf("catalog: 查询合约失败: %w", err)
	}

	return securityID, nil
}

// Upsert 写入或更新一条合约记录，供目录导入使用。
func (c *Catalog) Upsert(ctx context.Context, securityID, symbolName string, expiry time.Time) error {
	if securityID == "" || symbolName == "" {
		return errors.New("catalog: security_id 与 symbol_name 不能为空")
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO options (SECURITY_ID, SYMBOL_NAME, SM_EXPIRY_DATE) VALUES (?, ?, ?)
		 ON CONFLICT(SECURITY_ID) DO UPDATE SET SYMBOL_NAME=excluded.SYMBOL_NAME, SM_EXPIRY_DATE=excluded.SM_EXPIRY_DATE`,
		securityID, symbolName, expiry.Format("2006-01-02"),
	)
	if err != nil {
		return fmt.Errorf("catalog: 写入合约失败: %w", err)
	}
	return nil
}
