// internal/pkg/session/session.go
package session

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"orchard/internal/pkg/redis"
)

const (
	sessionKeyPrefix = "session:user:"
	sessionTTL       = 24 * time.Hour
)

// Manager 记录用户当前连接在哪个推送网关节点上。
// 多网关部署时消息路由靠它定位目标节点。
type Manager struct {
	rdb *goredis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{rdb: client.GetClient()}
}

// SetUserGateway 登记用户所在的网关节点。
func (m *Manager) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	return m.rdb.Set(ctx, sessionKeyPrefix+userID, nodeID, sessionTTL).Err()
}

// GetUserGateway 返回用户所在的网关节点，离线返回空串。
func (m *Manager) GetUserGateway(ctx context.Context, userID string) (string, error) {
	nodeID, err := m.rdb.Get(ctx, sessionKeyPrefix+userID).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return nodeID, nil
}

// RemoveUserGateway 在连接断开时清理会话。
func (m *Manager) RemoveUserGateway(ctx context.Context, userID string) error {
	return m.rdb.Del(ctx, sessionKeyPrefix+userID).Err()
}
