package main

import "github.com/tanq16/wirespeed/cmd"

func main() {
	cmd.Execute()
}
