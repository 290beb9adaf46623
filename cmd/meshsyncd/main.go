package main

import (
	"github.com/vietddude/meshsync/internal/cli"
)

func main() {
	cli.Execute()
}
