package usage

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"loyalty/internal/pkg/redis"
	"loyalty/internal/service/loyalty/domain"
)

const remainingScriptName = "loyalty_remaining"

// KEYS[1] 限额 KEYS[2] 用户已用次数 ARGV[1] 未配置限额时的默认值
const remainingScript = `
local limit = redis.call('GET', KEYS[1])
if not limit then
	limit = ARGV[1]
end
local used = redis.call('GET', KEYS[2])
if not used then
	used = '0'
end
return tonumber(limit) - tonumber(used)
`

// RedisCounter 是 port.UsageCounter 的 Redis 实现。
// 限额与已用次数由结算流程维护，这里只读。
type RedisCounter struct {
	client       *redis.Client
	defaultLimit int64
}

// NewRedisCounter 创建计数器并加载 Lua 脚本
func NewRedisCounter(client *redis.Client, defaultLimit int64) (*RedisCounter, error) {
	if err := client.LoadScriptFromContent(remainingScriptName, remainingScript); err != nil {
		return nil, errors.Wrap(err, "failed to load usage script")
	}
	return &RedisCounter{client: client, defaultLimit: defaultLimit}, nil
}

func ProgramLimitKey(programID int64) string {
	return fmt.Sprintf("loyalty:usage:program:{%d}:limit", programID)
}

func ProgramUsedKey(programID, userID int64) string {
	return fmt.Sprintf("loyalty:usage:program:{%d}:user:%d", programID, userID)
}

func RewardLimitKey(rewardID int64) string {
	return fmt.Sprintf("loyalty:usage:reward:{%d}:limit", rewardID)
}

func RewardUsedKey(rewardID, userID int64) string {
	return fmt.Sprintf("loyalty:usage:reward:{%d}:user:%d", rewardID, userID)
}

func (c *RedisCounter) RemainingForProgram(ctx context.Context, program *domain.Program, userID int64) (int64, error) {
	return c.remaining(ctx, ProgramLimitKey(program.ID), ProgramUsedKey(program.ID, userID))
}

func (c *RedisCounter) RemainingForReward(ctx context.Context, reward *domain.Reward, userID int64) (int64, error) {
	return c.remaining(ctx, RewardLimitKey(reward.ID), RewardUsedKey(reward.ID, userID))
}

func (c *RedisCounter) remaining(ctx context.Context, limitKey, usedKey string) (int64, error) {
	result, err := c.client.RunScript(ctx, remainingScriptName, []string{limitKey, usedKey}, c.defaultLimit)
	if err != nil {
		return 0, errors.Wrap(err, "usage adapter failed to run script")
	}
	n, ok := result.(int64)
	if !ok {
		return 0, errors.Errorf("unexpected result type from Lua script: %T", result)
	}
	return n, nil
}
