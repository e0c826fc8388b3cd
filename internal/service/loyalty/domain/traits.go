package domain

import (
	"strconv"

	"github.com/pkg/errors"
)

// Traits 由价格模拟器根据主机规格推导出的计价特征，例如 vcpu、region、memory。
type Traits map[string]any

// TraitRequest 计算 traits 所需的主机开通参数
type TraitRequest struct {
	VCPUs     int64
	Region    string
	DiskGB    int64
	MemoryMB  int64
	Flavor    string
	Aggregate string
}

// TraitRequestFromPluginData 从订单行的开通参数中解析 traits 请求。
// 参数缺失或格式不对时返回 ErrInvalidTraitRequest，该订单行无法参与规格匹配。
func TraitRequestFromPluginData(data map[string]any) (TraitRequest, error) {
	if data == nil {
		return TraitRequest{}, errors.Wrap(ErrInvalidTraitRequest, "plugin data is empty")
	}
	var (
		req TraitRequest
		err error
	)
	if req.VCPUs, err = intField(data, "vcpus"); err != nil {
		return TraitRequest{}, err
	}
	if req.DiskGB, err = intField(data, "disk"); err != nil {
		return TraitRequest{}, err
	}
	if req.MemoryMB, err = intField(data, "ram"); err != nil {
		return TraitRequest{}, err
	}
	req.Region, _ = data["region_name"].(string)
	req.Flavor, _ = data["flavor_name"].(string)
	req.Aggregate, _ = data["aggregate_instance"].(string)
	return req, nil
}

func intField(data map[string]any, key string) (int64, error) {
	switch v := data[key].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidTraitRequest, "field %s: %v", key, err)
		}
		return n, nil
	default:
		return 0, errors.Wrapf(ErrInvalidTraitRequest, "field %s has type %T", key, v)
	}
}
