package main

import "github.com/smallbiznis/storeledger/apps/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
