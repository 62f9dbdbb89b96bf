package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// DecideFlags holds flags for the decide command.
type DecideFlags struct {
	Ref     string
	Verdict string
	APIFlags
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen string
}
