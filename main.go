package main

import "github.com/AzielCF/az-wap-sales/cmd"

func main() {
	cmd.Execute()
}
