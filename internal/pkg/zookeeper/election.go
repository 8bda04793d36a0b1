// internal/pkg/zookeeper/election.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
)

const electionRoot = "/orchard/leaders" // 所有单例后台任务的选主根节点

// Elector 基于临时顺序节点实现选主。
// 超时监控、配送推进这类扫描任务在多实例部署时只允许一个实例运行，
// 会话断开后临时节点自动删除，领导权随之转移。
type Elector struct {
	conn   *Conn
	path   string // 角色路径，例如 /orchard/leaders/order-timeout-monitor
	myNode string // 成功竞选后自己创建的节点路径
}

// NewElector 为指定角色创建选举器。
func NewElector(conn *Conn, role string) (*Elector, error) {
	for _, p := range []string{"/orchard", electionRoot} {
		if err := conn.EnsurePath(p); err != nil {
			return nil, fmt.Errorf("failed to ensure election path %s: %w", p, err)
		}
	}
	path := electionRoot + "/" + role
	if err := conn.EnsurePath(path); err != nil {
		return nil, fmt.Errorf("failed to ensure role path %s: %w", path, err)
	}
	return &Elector{conn: conn, path: path}, nil
}

// Campaign 阻塞直到当选 leader 或 ctx 结束。
func (e *Elector) Campaign(ctx context.Context) error {
	// 1. 创建临时顺序节点，格式为 <role>/candidate-
	nodePath, err := e.conn.CreateProtectedEphemeralSequential(e.path+"/candidate-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create candidate node: %w", err)
	}
	e.myNode = nodePath

	for {
		// 2. 获取所有候选节点并排序
		children, _, err := e.conn.Children(e.path)
		if err != nil {
			return fmt.Errorf("failed to get candidate nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 自己是最小节点则当选
		myName := strings.TrimPrefix(e.myNode, e.path+"/")
		if myName == children[0] {
			return nil
		}

		// 4. 否则 watch 排在自己前面的节点，等它消失后重新竞争
		prevIndex := -1
		for i, child := range children {
			if child == myName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			return errors.New("cannot find own candidate node, session may have expired")
		}
		prevPath := e.path + "/" + children[prevIndex]

		_, _, eventChan, err := e.conn.ExistsW(prevPath)
		if err != nil {
			// 前一个节点刚好被删除，重试循环
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous candidate: %w", err)
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-ctx.Done():
			_ = e.Resign()
			return ctx.Err()
		}
	}
}

// Resign 放弃领导权或退出竞选。
func (e *Elector) Resign() error {
	if e.myNode == "" {
		return nil
	}
	err := e.conn.Delete(e.myNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete candidate node: %w", err)
	}
	e.myNode = ""
	return nil
}
