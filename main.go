package main

import (
	"flag"
	"fmt"
	"log"
)

var BuildVersion = "dev"

func main() {
	conf := flag.String("config", "", "path to config file or a http(s) url; empty runs with built-in defaults")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	config, err := loadConfig(*conf)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := startHTTPServer(config); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
