package main

import "github.com/meridianmarket/ms-go-payments/cmd"

func main() {
	cmd.Execute()
}
