// Package main provides the entry point for the placerank CLI.
//
// placerank records the ranking of places returned by a map search for
// tracked keywords, once per daily cycle.
//
// Usage:
//
//	placerank crawl "강남 맛집" "홍대 카페"
//	placerank enqueue "성수 카페"
//	placerank worker --metrics-addr :9090
//	placerank schedule --watch
//
// See --help for all available options.
package main

func main() {
	Execute()
}
