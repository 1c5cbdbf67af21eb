// Package cli implements the userdb command-line client, a thin wrapper
// over the socket protocol. Useful for poking at a running store and for
// smoke tests.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/dmitrijs2005/userdb/internal/client"
	"github.com/dmitrijs2005/userdb/internal/record"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

type App struct {
	socketPath string
	out        io.Writer
}

func NewApp(socketPath string, out io.Writer) *App {
	return &App{socketPath: socketPath, out: out}
}

// Run executes one subcommand:
//
//	create <username> <ip_reg> <last_logged> <last_ip> [password_hash]
//	get <ref> [field,field,...]
//	update <ref> <field>=<value> [...]
//	delete <ref>
//	find <field> <value> [field,field,...]
//	hash
//
// create without a password_hash argument prompts for a password with echo
// off and stores its bcrypt hash. hash does the same without touching the
// store.
func (a *App) Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given")
	}

	cmd, rest := args[0], args[1:]

	if cmd == "hash" {
		return a.runHash()
	}

	c, err := client.Dial(a.socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd {
	case "create":
		return a.runCreate(c, rest)
	case "get":
		return a.runGet(c, rest)
	case "update":
		return a.runUpdate(c, rest)
	case "delete":
		return a.runDelete(c, rest)
	case "find":
		return a.runFind(c, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) promptHash() (string, error) {
	fmt.Fprint(a.out, "Enter password: ")
	pw, err := readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *App) runHash() error {
	hash, err := a.promptHash()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}

func (a *App) runCreate(c *client.Client, args []string) error {
	if len(args) < 4 || len(args) > 5 {
		return fmt.Errorf("usage: create <username> <ip_reg> <last_logged> <last_ip> [password_hash]")
	}

	rec := record.Record{
		Username:   args[0],
		IPReg:      args[1],
		LastLogged: args[2],
		LastIP:     args[3],
	}

	if len(args) == 5 {
		rec.PasswordHash = args[4]
	} else {
		hash, err := a.promptHash()
		if err != nil {
			return err
		}
		rec.PasswordHash = hash
	}

	ref, err := c.Create(rec)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, ref)
	return nil
}

func (a *App) runGet(c *client.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: get <ref> [field,field,...]")
	}

	var fields []string
	if len(args) == 2 {
		fields = strings.Split(args[1], ",")
	}

	rec, err := c.Get(args[0], fields)
	if err != nil {
		return err
	}
	return a.printJSON(rec)
}

// parsePairs turns "field=value" arguments into an update patch.
func parsePairs(args []string) (map[string]string, error) {
	patch := make(map[string]string, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected <field>=<value>, got %q", arg)
		}
		patch[field] = value
	}
	return patch, nil
}

func (a *App) runUpdate(c *client.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: update <ref> <field>=<value> [...]")
	}

	patch, err := parsePairs(args[1:])
	if err != nil {
		return err
	}

	rec, err := c.Update(args[0], patch)
	if err != nil {
		return err
	}
	return a.printJSON(rec)
}

func (a *App) runDelete(c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <ref>")
	}
	if err := c.Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deleted")
	return nil
}

func (a *App) runFind(c *client.Client, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: find <field> <value> [field,field,...]")
	}

	var fields []string
	if len(args) == 3 {
		fields = strings.Split(args[2], ",")
	}

	results, err := c.Find(args[0], args[1], fields)
	if err != nil {
		return err
	}
	return a.printJSON(results)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
