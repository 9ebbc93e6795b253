package main

import "github.com/KaramelBytes/geopower/cmd"

func main() {
	cmd.Execute()
}
