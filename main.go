package main

import "github.com/atcsutton/ANNIEGrid/cmd"

func main() {
	cmd.Execute()
}
