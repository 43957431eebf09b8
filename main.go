/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/sfm-market/storefront/cmd"

func main() {
	cmd.Execute()
}
