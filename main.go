/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/crowdqc/quality-gin/cmd"

func main() {
	cmd.Execute()
}
