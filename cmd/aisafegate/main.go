package main

import "github.com/aisafe-dev/aisafegate/cmd/aisafegate/cmd"

func main() {
	cmd.Execute()
}
