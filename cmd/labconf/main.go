package main

import "github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
