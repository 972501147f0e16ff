package main

import "github.com/blobmesh/blobmesh/internal/cli"

func main() {
	cli.Execute()
}
