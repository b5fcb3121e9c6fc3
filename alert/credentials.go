// Package alert posts failure reports to a chat channel and escalates them
// to an on-call pager.
package alert

import (
	"fmt"
	"strings"

	"github.com/perfgo/e2erun/engine"
)

const (
	EnvSlackToken   = "SLACK_API_TOKEN"
	EnvSlackChannel = "SLACK_WARNING_CHANNEL"
	EnvOpsGenieKey  = "OPSGENIE_KEY"
)

// Credentials are required only when alerting is enabled.
type Credentials struct {
	SlackToken   string
	SlackChannel string
	OpsGenieKey  string
}

// Validate names every missing variable.
func (c Credentials) Validate() error {
	var missing []string
	if c.SlackToken == "" {
		missing = append(missing, EnvSlackToken)
	}
	if c.SlackChannel == "" {
		missing = append(missing, EnvSlackChannel)
	}
	if c.OpsGenieKey == "" {
		missing = append(missing, EnvOpsGenieKey)
	}
	if len(missing) > 0 {
		return &engine.ConfigError{Reason: fmt.Sprintf("alerting requires %s to be set", strings.Join(missing, ", "))}
	}
	return nil
}
