package main

import "github.com/jameswong3388/AE-Logs-Analyzer/internal/cmd"

func main() {
	cmd.Execute()
}
