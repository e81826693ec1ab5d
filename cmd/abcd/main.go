// Command abcd drives the ABC-SMC engine: run starts one or more workers'
// generation loops against the worked coin-bias example model, purge
// wipes a bucket/prefix clean, and check-num-particles reports how
// many particles the current generation has accepted so far.
package main

import "os"

var rootCmd = newRootCmd()

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
