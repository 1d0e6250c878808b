package main

import (
	"github.com/sirupsen/logrus"

	"github.com/code-payments/chain-fuzzer/pkg/app"
	"github.com/code-payments/chain-fuzzer/pkg/harness"
)

func main() {
	if err := app.Run(harness.New()); err != nil {
		logrus.StandardLogger().WithError(err).Fatal("error running fuzzer")
	}
}
