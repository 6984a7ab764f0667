package main

import "github.com/Sentinel-Gate/approvalgate/cmd/approval-gate/cmd"

func main() {
	cmd.Execute()
}
