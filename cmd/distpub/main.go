package main

import (
	distpubcmd "github.com/initializ/distpub/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	distpubcmd.SetVersionInfo(version, commit)
	distpubcmd.Execute()
}
