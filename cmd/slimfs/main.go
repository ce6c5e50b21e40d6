package main

import (
	"github.com/kukaryambik/slimfs/cmd/slimfs/cmd"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}
