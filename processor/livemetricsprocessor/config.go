// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetricsprocessor // import "github.com/livetel/livemetrics/processor/livemetricsprocessor"

import (
	"errors"
	"time"
)

// Config defines configuration for the live metrics processor.
//
// Example configuration:
//
//	processors:
//	  livemetrics:
//	    role_name: checkout
//	    export_interval: 1s
type Config struct {
	// RoleName identifies the logical service; defaults to the executable name.
	RoleName string `mapstructure:"role_name"`
	// RoleInstance identifies this process within the role; defaults to the
	// machine name.
	RoleInstance string `mapstructure:"role_instance"`
	// ExportInterval is the live metrics export cadence. Default is 1s.
	ExportInterval time.Duration `mapstructure:"export_interval"`
	// IsWebApp marks the process as a managed web application host.
	IsWebApp bool `mapstructure:"is_web_app"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ExportInterval < 0 {
		return errors.New("export_interval must not be negative")
	}
	return nil
}
