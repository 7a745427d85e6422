package cmd

import (
	"fmt"
	"time"

	"github.com/imroc/req/v3"
)

// daemonClient talks to the control server of a running sync session.
func daemonClient() *req.Client {
	return req.C().
		SetBaseURL(daemonURL("")).
		SetTimeout(5 * time.Second)
}

func daemonCall(r *req.Request, method, path string) error {
	resp, err := r.Send(method, path)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("daemon returned HTTP %d: %s", resp.StatusCode, resp.String())
	}
	return nil
}
