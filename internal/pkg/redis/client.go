package redis

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 包装 go-redis，单地址用单机模式，多地址用集群模式，并管理按名字注册的 Lua 脚本。
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 用逗号分隔的地址列表创建客户端并探活
func NewClient(addrs, password string) (*Client, error) {
	list := strings.Split(addrs, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	c := NewFromUniversal(goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    list,
		Password: password,
	}))
	if err := c.client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis %s", addrs)
	}
	return c, nil
}

// NewFromUniversal 包装一个已有的客户端
func NewFromUniversal(client goredis.UniversalClient) *Client {
	return &Client{client: client, scripts: make(map[string]*goredis.Script)}
}

func (c *Client) GetClient() goredis.UniversalClient { return c.client }

// LoadScriptFromContent 注册脚本并预加载到服务端
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(context.Background(), c.client).Err(); err != nil {
		return errors.Wrapf(err, "load script %s", name)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本，服务端缓存丢失时自动回退到 EVAL
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %s not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) Close() error { return c.client.Close() }
