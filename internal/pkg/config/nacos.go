package config

import (
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
)

// ServerConfigs 解析 "ip1:port1,ip2:port2" 格式的 Nacos 地址
func ServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		parts := strings.Split(strings.TrimSpace(addr), ":")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	return serverConfigs, nil
}

// FetchNacosConfig 从 Nacos 配置中心读取一次配置内容
func FetchNacosConfig(cfg NacosConfig) (string, error) {
	serverConfigs, err := ServerConfigs(cfg.Addrs)
	if err != nil {
		return "", err
	}
	group := cfg.Group
	if group == "" {
		group = "DEFAULT_GROUP" // Nacos 默认分组
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(cfg.Namespace),
	)
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create nacos config client")
	}
	defer client.CloseClient()

	content, err := client.GetConfig(vo.ConfigParam{DataId: cfg.DataID, Group: group})
	if err != nil {
		return "", errors.Wrapf(err, "get nacos config %s/%s", group, cfg.DataID)
	}
	return content, nil
}
