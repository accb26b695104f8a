// The main package for the web-scraper executable.
package main

import (
	"github.com/JezreelBuenconsejo/web-scraper/cmd"
)

func main() {
	cmd.Execute()
}
