// Package erptest provides a testify mock of erp.Client.
package erptest

import (
	"context"

	"github.com/smallbiznis/millroll/internal/erp"
	"github.com/stretchr/testify/mock"
)

type Client struct {
	mock.Mock
}

var _ erp.Client = (*Client)(nil)

func (c *Client) PostConsumption(ctx context.Context, req erp.GoodsIssue) (string, error) {
	args := c.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (c *Client) PostRoll(ctx context.Context, req erp.RollReceipt) error {
	args := c.Called(ctx, req)
	return args.Error(0)
}
