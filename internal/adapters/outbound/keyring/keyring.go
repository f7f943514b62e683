// Package keyring stores per-team container passwords in the OS keyring
// (macOS Keychain, Secret Service, Windows Credential Manager).
package keyring

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gokeyring "github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// DefaultService is the keyring service name entries are stored under.
const DefaultService = "signet"

// Store is a PasswordSource keyed by team id.
type Store struct {
	service string
}

var _ ports.PasswordSource = Store{}

func New(service string) Store {
	if service == "" {
		service = DefaultService
	}
	return Store{service: service}
}

func account(team domain.TeamID) string {
	return "keychain-password/" + team.String()
}

func (s Store) Password(team domain.TeamID) (string, error) {
	pw, err := gokeyring.Get(s.service, account(team))
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", fmt.Errorf("password for %s: %w", team, ports.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("keyring: %w", err)
	}
	return pw, nil
}

func (s Store) StorePassword(team domain.TeamID, password string) error {
	if err := gokeyring.Set(s.service, account(team), password); err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	return nil
}

// Delete removes the stored password. Missing entries are not an error.
func (s Store) Delete(team domain.TeamID) error {
	err := gokeyring.Delete(s.service, account(team))
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("keyring: %w", err)
	}
	return nil
}

// ErrNotTerminal is returned by Prompt when in is not an interactive terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// Prompt reads a password twice from the terminal without echo.
func Prompt(in *os.File, out io.Writer, label string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotTerminal
	}
	read := func(msg string) (string, error) {
		fmt.Fprint(out, msg)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return strings.TrimSpace(string(b)), err
	}
	first, err := read(label + ": ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("password is empty")
	}
	second, err := read("Repeat " + strings.ToLower(label) + ": ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
