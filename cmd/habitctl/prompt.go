package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/habitctl/pkg/vault"
)

// errNoInput is returned when input ends before a prompt is answered.
var errNoInput = errors.New("no input: stdin was closed")

// prompter reads answers from the command's input. Passwords are read
// without echo when the input is a terminal and line by line otherwise.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(cmd *cobra.Command) *prompter {
	p := &prompter{
		in:  bufio.NewReader(cmd.InOrStdin()),
		out: cmd.ErrOrStderr(),
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd, p.tty = int(f.Fd()), true
	}
	return p
}

// password prompts for a secret.
func (p *prompter) password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out) // Add newline after hidden input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return p.readLine()
}

// newPassword prompts for a new password twice and checks it against the
// configured minimum length. Strength and advice are printed, not enforced.
func (p *prompter) newPassword(label string, minLength int) (string, error) {
	pw1, err := p.password(fmt.Sprintf("Enter %s: ", label))
	if err != nil {
		return "", err
	}
	pw2, err := p.password(fmt.Sprintf("Confirm %s: ", label))
	if err != nil {
		return "", err
	}
	if pw1 != pw2 {
		return "", errors.New("passwords do not match")
	}

	result := vault.ValidatePassword(pw1, minLength)
	if !result.Valid {
		return "", fmt.Errorf("password validation failed: %s", result.Warnings[0])
	}

	fmt.Fprintf(p.out, "Password strength: %s\n", result.Strength)
	for _, warning := range result.Warnings {
		fmt.Fprintf(p.out, "Warning: %s\n", warning)
	}
	return pw1, nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func (p *prompter) confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	answer, err := p.readLine()
	if err != nil {
		if errors.Is(err, errNoInput) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readLine reads a single line, trimming the line ending.
func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if line == "" {
			return "", errNoInput
		}
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
