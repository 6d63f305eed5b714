package main

import "fmt"

func errUnknownEntry(name string) error {
	return fmt.Errorf("tauir: sample has no entry function named %q", name)
}
