package api

import (
	"fmt"
	"net/url"
	"strings"
)

func validateOptimizeRequest(req *optimizeRequest) error {
	if req.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be >= 0")
	}
	if req.TopN < 0 {
		return fmt.Errorf("topN must be >= 0")
	}
	for _, n := range req.Strategies {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("strategy names must not be empty")
		}
	}
	return nil
}

func validateSubscriptionRequest(req *subscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		if _, ok := knownEvents[e]; !ok {
			return fmt.Errorf("unknown event type: %s", e)
		}
	}
	return nil
}
