package main

import "certcheck/process/sanitize"

func main() {
	sanitize.Run()
}
