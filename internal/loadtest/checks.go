package loadtest

import (
	"context"
	"errors"

	"github.com/hos-care/console/internal/client"
)

// Check is one request a virtual user makes per iteration.
type Check struct {
	Name  string
	Admin bool // needs credentials
	Run   func(ctx context.Context, c *client.HTTPClient) error
}

// DefaultChecks mirrors the smoke script: health always, then the admin
// log and stats endpoints when credentials are available.
var DefaultChecks = []Check{
	{
		Name: "health 200",
		Run: func(ctx context.Context, c *client.HTTPClient) error {
			_, err := c.Health(ctx)
			return err
		},
	},
	{
		Name:  "logs 200/204",
		Admin: true,
		Run: func(ctx context.Context, c *client.HTTPClient) error {
			_, err := c.GetLogs(ctx, 1)
			return err
		},
	},
	{
		Name:  "stats 200",
		Admin: true,
		Run: func(ctx context.Context, c *client.HTTPClient) error {
			_, err := c.GetStats(ctx)
			return err
		},
	},
}

// statusOf returns the HTTP status behind err, or zero when the request
// never got a response.
func statusOf(err error) int {
	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
