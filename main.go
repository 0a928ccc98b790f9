package main

import "github.com/carnimore/checkout/cmd"

func main() {
	cmd.Execute()
}
