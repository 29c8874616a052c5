// The main package for the pagecache-warmer executable.
package main

import "github.com/JakeFAU/pagecache-warmer/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
