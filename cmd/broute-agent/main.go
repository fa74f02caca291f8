package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/broute/cmd/broute-agent/app"
)

func main() {
	app.NewApp().Run()
}
