// Command profctl runs and controls profiling sessions.
package main

import "github.com/sarchlab/sessionprof/profctl/cmd"

func main() {
	cmd.Execute()
}
