// Package main runs the pagesim command line tool.
package main

import "github.com/sarchlab/pagesim/pagesim/cmd"

func main() {
	cmd.Execute()
}
