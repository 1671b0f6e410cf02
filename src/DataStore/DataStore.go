package DataStore

import (
	"context"
	"fmt"

	"github.com/nhirsama/Goster-Bridge/src/config"
	"github.com/nhirsama/Goster-Bridge/src/inter"
)

// Open 按配置选择存储后端
func Open(ctx context.Context, c config.DatabaseConfig) (inter.DataStore, error) {
	switch c.Driver {
	case "", "sqlite":
		return NewDataStoreSql(c.Path)
	case "postgres":
		return NewDataStorePg(ctx, c.DSN)
	default:
		return nil, fmt.Errorf("DataStore: 未知的存储后端 %q", c.Driver)
	}
}
