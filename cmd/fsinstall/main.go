package main

import "github.com/wkotlarski/install-flexiblesusy/internal/fsinstall"

func main() {
	fsinstall.Main()
}
