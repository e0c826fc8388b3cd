package simulator

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"loyalty/internal/pkg/httpclient"
	"loyalty/internal/service/loyalty/domain"
)

// traitsResponse 价格模拟器的响应体
type traitsResponse struct {
	Traits map[string]any `json:"traits"`
}

// HTTPTraitResolver 是 port.TraitResolver 的 HTTP 实现，调用价格模拟器推导主机的计价特征。
type HTTPTraitResolver struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPTraitResolver(client *httpclient.Client, baseURL string) *HTTPTraitResolver {
	return &HTTPTraitResolver{client: client, baseURL: baseURL}
}

func (r *HTTPTraitResolver) Resolve(ctx context.Context, req domain.TraitRequest) (domain.Traits, error) {
	params := url.Values{}
	params.Set("vcpus", strconv.FormatInt(req.VCPUs, 10))
	params.Set("disk", strconv.FormatInt(req.DiskGB, 10))
	params.Set("ram", strconv.FormatInt(req.MemoryMB, 10))
	if req.Region != "" {
		params.Set("region", req.Region)
	}
	if req.Flavor != "" {
		params.Set("flavor", req.Flavor)
	}
	if req.Aggregate != "" {
		params.Set("aggregate", req.Aggregate)
	}

	var resp traitsResponse
	if err := r.client.GetJSON(ctx, r.baseURL, params, &resp); err != nil {
		return nil, errors.Wrap(err, "simulate traits")
	}
	if resp.Traits == nil {
		return domain.Traits{}, nil
	}
	return domain.Traits(resp.Traits), nil
}
