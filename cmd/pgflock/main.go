// Copyright (c) 2018, Postgres Professional

package main

import "pgflock/cmd/pgflock/cmd"

func main() {
	cmd.Execute()
}
