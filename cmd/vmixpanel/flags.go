package main

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	EnvFile    string
}

// ServeFlags Flag structs to decouple cobra from logic for testing.
// Zero values leave the configured value in place.
type ServeFlags struct {
	ConfigPath     string
	EnvFile        string
	Host           string
	Port           int
	PublicDir      string
	NonInteractive bool
}

type ProbeFlags struct {
	ConfigPath string
	EnvFile    string
	Host       string
	Port       int
}

type KillPortFlags struct {
	ConfigPath string
	EnvFile    string
	Port       int
	Yes        bool // skip the confirmation prompt
}
