package main

import "github.com/validome/accountd/cmd"

func main() {
	cmd.Execute()
}
