package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/fleetlink-io/fleetlink/cmd/fleetlink-fetch/app"
)

func main() {
	app.NewApp().Run()
}
