package main

import "github.com/likhithmdev/Final-Sic/cmd"

func main() {
	cmd.Execute()
}
