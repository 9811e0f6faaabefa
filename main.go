package main

import "github.com/inkgate/inkgate/cmd"

func main() {
	cmd.Execute()
}
