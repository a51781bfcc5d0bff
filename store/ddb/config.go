/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries the DynamoDB connection settings. It is an owned value
// handed to New explicitly; FromEnv builds one from the process
// environment for tools and tests.
type Config struct {
	AccessKey string `env:"AWS_ACCESS_KEY"`
	SecretKey string `env:"AWS_SECRET_KEY"`
	Region    string `env:"AWS_REGION" envDefault:"us-east-1"`
	Table     string `env:"AWS_DDB_TABLE"`

	// Endpoint overrides the service endpoint, for DynamoDB Local.
	Endpoint string `env:"AWS_DDB_ENDPOINT"`

	// PollInterval is the change-listener polling cadence.
	PollInterval time.Duration `env:"REPOKIT_POLL_INTERVAL" envDefault:"2s"`
}

// FromEnv reads the configuration from environment variables.
func FromEnv() (Config, error) {
	return env.ParseAs[Config]()
}
