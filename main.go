package main

import (
	"propsync/cmd"
)

func main() {
	cmd.Execute()
}
