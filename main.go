package main

import "github.com/Mohsinsiddi/swapdeploy/cmd"

func main() {
	cmd.Execute()
}
