package main

import "github.com/manudelosrios02/datalogger/cmd"

func main() {
	cmd.Execute()
}
