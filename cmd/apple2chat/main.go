// Package main provides the apple2chat CLI: an Apple ][e styled chat front-end
// relaying conversations to a hosted LLM completion API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
