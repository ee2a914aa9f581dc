// Command pagesim runs memory workloads on the simulated MMU.
package main

import "github.com/sarchlab/pagesim/cmd/pagesim/cmd"

func main() {
	cmd.Execute()
}
