// Cinch CLI - validate, render and dispatch tool specifications
//
// Audit logging is enabled through the environment, for example
// CINCH_AUDIT_ENABLED=true CINCH_AUDIT_OUTPUT_FILE=/tmp/cinch-audit.jsonl
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/cinch"
	"github.com/agilira/cinch/cmd/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	config, err := cinch.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	manager := cli.NewManager()
	if config.Audit.Enabled {
		auditLogger, err := cinch.NewAuditLogger(config.Audit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = auditLogger.Close() }()
		manager.WithAudit(auditLogger)
	}

	if err := manager.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
