// Package main is the entry point for the agentkit CLI.
//
// Usage:
//
//	agentkit [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve      - Run an agent over A2A (research, slack, gitissue, weather)
//	tool       - Run an MCP tool server (weather, slack, github)
//	ask        - Send a message to an A2A agent and stream its progress
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/agentkit/cmd/agentkit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
