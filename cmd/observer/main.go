package main

import (
	"price-feed-observer/internal/cli"
)

func main() {
	cli.Execute()
}
