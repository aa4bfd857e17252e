package main

import "github.com/urfave/cli/v3"

// getCommands assembles all CLI commands for the application.
func getCommands(version string) []*cli.Command {
	commands := getServiceCommands(version)
	commands = append(commands, getAdminCommands()...)
	return commands
}
