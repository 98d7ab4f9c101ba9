package registry

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"options-trader/internal/broker"
)

// ErrDuplicateAccount 表示账户标识已注册，属于信息性错误。
var ErrDuplicateAccount = errors.New("registry: account already registered")

// Account 绑定账户标识与对应的券商客户端。
type Account struct {
	ID     string
	Client broker.Client
}

// Registry 持有全部在用账户。启动时从配置构建，之后只增不减：
// 凭证一旦受信即保持到进程结束，不提供移除操作。
type Registry struct {
	mu       sync.RWMutex
	accounts []*Account
	index    map[string]*Account
	logger   *zap.Logger
}

// New 创建空的账户注册表。
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		index:  make(map[string]*Account),
		logger: logger,
	}
}

// Add 注册新账户，重复标识返回 ErrDuplicateAccount。
func (r *Registry) Add(id string, client broker.Client) (*Account, error) {
	if id == "" {
		return nil, errors.New("registry: 账户标识不能为空")
	}
	if client == nil {
		return nil, errors.New("registry: 券商客户端不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, id)
	}

	acct := &Account{ID: id, Client: client}
	r.accounts = append(r.accounts, acct)
	r.index[id] = acct

	r.logger.Info("账户已注册", zap.String("account", id))
	return acct, nil
}

// All 按注册顺序返回账户快照。
func (r *Registry) All() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Get 按标识查找账户。
func (r *Registry) Get(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.index[id]
	return acct, ok
}

// Len 返回已注册账户数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}
