package main

import "github.com/bryanchriswhite/DualCam/cmd/dualcam/commands"

func main() {
	commands.Execute()
}
