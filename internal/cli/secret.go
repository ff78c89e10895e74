package cli

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"
)

// Prompts for the link secret without echo
func readSecret() (secret []byte, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		err = fmt.Errorf("secret prompt requires a terminal on stdin")
		return
	}

	fmt.Fprint(os.Stderr, "Link secret: ")
	secret, err = term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		err = fmt.Errorf("failed reading secret: %v", err)
		return
	}

	secret = bytes.TrimSpace(secret)
	if len(secret) == 0 {
		err = fmt.Errorf("empty secret")
	}
	return
}
