package main

import (
	"github.com/fleetsink-io/fleetsink/cmd/fsink-agent/app"
)

func main() {
	app.NewApp().Run()
}
