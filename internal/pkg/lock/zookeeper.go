package lock

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const defaultZKRoot = "/distributed_locks" // 所有分布式锁的根节点

// ZKLocker 基于临时顺序节点的 ZooKeeper 分布式锁
type ZKLocker struct {
	conn    *zk.Conn
	root    string
	timeout time.Duration
}

// NewZKLocker 连接 ZooKeeper 并确保根节点存在
func NewZKLocker(servers []string, root string, timeout time.Duration) (*ZKLocker, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	if root == "" {
		root = defaultZKRoot
	}
	l := &ZKLocker{conn: conn, root: root, timeout: timeout}
	if err := l.ensure(root); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *ZKLocker) ensure(path string) error {
	_, err := l.conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "create lock node %s", path)
	}
	return nil
}

// Acquire 获取 key 对应的锁，拿不到时阻塞等待前一个节点删除，
// 直到 ctx 结束或超时。
func (l *ZKLocker) Acquire(ctx context.Context, key string) (func() error, error) {
	path := l.root + "/" + key
	if err := l.ensure(path); err != nil {
		return nil, err
	}

	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sequential node")
	}
	release := func() error {
		err := l.conn.Delete(nodePath, -1)
		if err != nil && !errors.Is(err, zk.ErrNoNode) {
			return errors.Wrap(err, "failed to delete lock node")
		}
		return nil
	}
	myNode := strings.TrimPrefix(nodePath, path+"/")

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	for {
		// 2. 获取所有子节点，按序号排序
		children, _, err := l.conn.Children(path)
		if err != nil {
			_ = release()
			return nil, errors.Wrap(err, "failed to get children nodes")
		}
		prev, first := previousNode(children, myNode)
		// 3. 自己是最小节点，成功获取锁
		if first {
			return release, nil
		}
		if prev == "" {
			_ = release()
			return nil, errors.New("cannot find previous node")
		}

		// 4. 监听前一个节点
		exists, _, events, err := l.conn.ExistsW(path + "/" + prev)
		if err != nil {
			_ = release()
			return nil, errors.Wrap(err, "failed to watch previous node")
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-waitCtx.Done():
			_ = release()
			return nil, errors.Wrapf(ErrNotAcquired, "%s: %v", key, waitCtx.Err())
		}
	}
}

// previousNode 返回排在 node 前面的节点；first 为 true 表示 node 序号最小。
// 受保护节点带有 GUID 前缀，只能按末尾的序号比较。
func previousNode(children []string, node string) (prev string, first bool) {
	sorted := append([]string(nil), children...)
	sort.Slice(sorted, func(i, j int) bool { return sequenceOf(sorted[i]) < sequenceOf(sorted[j]) })
	for i, child := range sorted {
		if child != node {
			continue
		}
		if i == 0 {
			return "", true
		}
		return sorted[i-1], false
	}
	return "", false
}

// sequenceOf 取节点名末尾 10 位序号
func sequenceOf(name string) string {
	if len(name) < 10 {
		return name
	}
	return name[len(name)-10:]
}

func (l *ZKLocker) Close() {
	l.conn.Close()
}
