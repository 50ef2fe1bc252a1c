package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
	"github.com/vedran77/pulsechat/internal/session"
)

const helpText = `Commands:
  /users [n]       list other users, most recently active first
  /search <text>   filter the listed users
  /open <user>     open the direct chat with a user
  /add <name>      add a user to your list
  /remove <user>   remove a user from your list
  /close           close the open chat
  /logout          log out and choose another name
  /quit            exit
Anything else is sent to the open chat.`

var errQuit = errors.New("quit")

type repl struct {
	manager *session.Manager
	in      *bufio.Scanner

	outMu sync.Mutex
	out   io.Writer
}

func newREPL(manager *session.Manager, in *bufio.Scanner, out io.Writer) *repl {
	return &repl{manager: manager, in: in, out: out}
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// run alternates between the login prompt and the command loop until the
// user quits or stdin ends.
func (r *repl) run(ctx context.Context, name string) error {
	for {
		sess, err := r.login(ctx, name)
		if err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		name = ""

		err = r.loop(ctx, sess)
		r.manager.Disconnect(ctx)
		switch {
		case err == nil:
			r.printf("Logged out.\n")
		case errors.Is(err, errQuit), errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

func (r *repl) readLine() (string, error) {
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.in.Text()), nil
}

func (r *repl) login(ctx context.Context, name string) (*session.Session, error) {
	for {
		if name == "" {
			r.printf("Username: ")
			line, err := r.readLine()
			if err != nil {
				return nil, err
			}
			if line == "/quit" {
				return nil, errQuit
			}
			name = line
		}

		sess, err := r.manager.Login(ctx, session.Config{DisplayName: name})
		if err == nil {
			r.attach(sess)
			r.printf("Logged in as %s (%s). Type /help for commands.\n", sess.Me().DisplayName(), sess.Me().ID)
			return sess, nil
		}

		if errors.Is(err, session.ErrValidation) {
			r.printf("Please enter a username.\n")
		} else {
			r.printf("Login failed: %v\n", err)
		}
		name = ""
	}
}

// attach prints pushed messages as they land in the open chat.
func (r *repl) attach(sess *session.Session) {
	sess.OnMessage(func(m domain.Message) {
		r.printf("%s\n", formatMessage(m))
	})
}

func (r *repl) loop(ctx context.Context, sess *session.Session) error {
	for {
		line, err := r.readLine()
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		if err := r.handle(ctx, sess, line); err != nil {
			if errors.Is(err, errLogout) {
				return nil
			}
			if errors.Is(err, errQuit) {
				return err
			}
			r.printf("Error: %v\n", err)
		}
	}
}

var errLogout = errors.New("logout")

func (r *repl) handle(ctx context.Context, sess *session.Session, line string) error {
	cmd, arg := parseCommand(line)

	switch cmd {
	case "":
		_, err := sess.Send(ctx, arg)
		if errors.Is(err, session.ErrNoActiveChannel) {
			return errors.New("open a chat first with /open <user>")
		}
		return err

	case "help":
		r.printf("%s\n", helpText)

	case "users":
		limit := session.DefaultUserLimit
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid count %q", arg)
			}
			limit = n
		}
		users, err := sess.ListUsers(ctx, limit)
		if err != nil {
			return err
		}
		r.printUsers(users)

	case "search":
		r.printUsers(sess.SearchUsers(arg))

	case "open":
		if arg == "" {
			return errors.New("usage: /open <user>")
		}
		view, err := sess.OpenDirectChannel(ctx, identity.Canonicalize(arg))
		if err != nil {
			return err
		}
		r.printf("-- chat with %s (%s), %d messages --\n", view.Peer, r.peerStatus(sess, view.Peer), len(view.Messages))

	case "add":
		if arg == "" {
			return errors.New("usage: /add <name>")
		}
		u, err := sess.AddUser(ctx, arg)
		if err != nil {
			return err
		}
		r.printf("Added %s.\n", u.ID)

	case "remove":
		id := identity.Canonicalize(arg)
		if !sess.RemoveUser(id) {
			return fmt.Errorf("%s is not in your list", id)
		}
		r.printf("Removed %s from your list.\n", id)

	case "close":
		sess.CloseChannel(ctx)
		r.printf("Chat closed.\n")

	case "logout":
		return errLogout

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command /%s, try /help", cmd)
	}
	return nil
}

func (r *repl) peerStatus(sess *session.Session, peer string) string {
	for _, u := range sess.Users() {
		if u.ID == peer {
			return session.PresenceLabel(u)
		}
	}
	return session.PresenceLabel(domain.User{})
}

func (r *repl) printUsers(users []domain.User) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	renderUsers(r.out, users)
}

// parseCommand splits "/cmd arg" into its parts. Plain text comes back with
// an empty command.
func parseCommand(line string) (cmd, arg string) {
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func renderUsers(w io.Writer, users []domain.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users yet. Add one with /add <name>.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Status"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, u := range users {
		table.Append([]string{u.ID, u.DisplayName(), session.PresenceLabel(u)})
	}
	table.Render()
}

func formatMessage(m domain.Message) string {
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04"), m.UserID, m.Text)
}
