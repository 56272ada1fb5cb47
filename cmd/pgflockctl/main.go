// Copyright (c) 2018, Postgres Professional

package main

import "pgflock/cmd/pgflockctl/cmd"

func main() {
	cmd.Execute()
}
