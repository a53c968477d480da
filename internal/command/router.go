// Package command interprets console lines against the current control mode
// and exposes the session-affecting verbs shared with the HTTP surface.
package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/manudelosrios02/datalogger/internal/storage"
)

// Back returns to the menu, or stops the session when one is running.
const Back = "back"

// Sessions is the slice of the session manager the router drives.
type Sessions interface {
	Start(label string) error
	Stop() error
	IsBusy(name string) bool
	Active() bool
}

// Router is the console state machine. Like the session manager it is owned
// by the coordinator loop and not safe for concurrent use.
type Router struct {
	mode     Mode
	sessions Sessions
	store    storage.Store
	out      io.Writer
}

// NewRouter returns a router in menu mode.
func NewRouter(sessions Sessions, store storage.Store, out io.Writer) *Router {
	return &Router{
		mode:     ModeMenu,
		sessions: sessions,
		store:    store,
		out:      out,
	}
}

// Mode returns the current control mode.
func (r *Router) Mode() Mode {
	return r.mode
}

// Handle interprets one console line. Blank lines are ignored.
func (r *Router) Handle(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	slog.Debug("Console command", "mode", r.mode.String(), "input", input)

	switch r.mode {
	case ModeMenu:
		r.handleMenu(input)

	case ModeAwaitingStartName:
		if isBack(input) {
			r.toMenu()
			return
		}
		if err := r.StartSession(input); err != nil {
			r.toMenu()
		}

	case ModeAwaitingReadName:
		if isBack(input) {
			r.toMenu()
			return
		}
		r.read(input)
		fmt.Fprintln(r.out, "Enter another filename, or 'back'.")

	case ModeAwaitingDeleteName:
		if isBack(input) {
			r.toMenu()
			return
		}
		r.Delete(input)
		fmt.Fprintln(r.out, "Enter another filename to delete, or 'back'.")

	case ModeSessionActive:
		if isBack(input) {
			r.StopSession()
			return
		}
		fmt.Fprintln(r.out, "Session active, use 'back' to stop.")

	default:
		slog.Error("Router in unknown mode, resetting", "mode", int(r.mode))
		r.toMenu()
	}
}

func (r *Router) handleMenu(input string) {
	switch strings.ToLower(input) {
	case "a":
		r.mode = ModeAwaitingStartName
		fmt.Fprintln(r.out, "Enter a name for the recording (or 'back'):")
	case "b":
		r.mode = ModeAwaitingReadName
		r.list()
		fmt.Fprintln(r.out, "Enter the filename to read (or 'back'):")
	case "c":
		r.mode = ModeAwaitingDeleteName
		r.list()
		fmt.Fprintln(r.out, "Enter the filename to delete (or 'back'):")
	default:
		fmt.Fprintf(r.out, "Unrecognized command: %s\n", input)
		r.PrintMenu()
	}
}

// PrintMenu writes the top-level menu.
func (r *Router) PrintMenu() {
	fmt.Fprintln(r.out, "=== DATALOGGER ===")
	fmt.Fprintln(r.out, "a) start recording")
	fmt.Fprintln(r.out, "b) read a file")
	fmt.Fprintln(r.out, "c) delete a file")
}

// StartSession starts a recording and keeps the mode in step with the
// session state. Failures are reported on the console and returned.
func (r *Router) StartSession(label string) error {
	if err := r.sessions.Start(label); err != nil {
		fmt.Fprintf(r.out, "Cannot start recording %q: %s\n", label, Describe(err))
		return err
	}
	r.mode = ModeSessionActive
	fmt.Fprintln(r.out, "Recording started. Type 'back' to stop.")
	return nil
}

// StopSession stops the running recording and returns to the menu.
func (r *Router) StopSession() error {
	err := r.sessions.Stop()
	switch {
	case errors.Is(err, errcode.NotActive):
		fmt.Fprintln(r.out, "No recording in progress.")
	case err != nil:
		fmt.Fprintf(r.out, "Recording stopped with errors: %s\n", Describe(err))
	default:
		fmt.Fprintln(r.out, "Recording stopped.")
	}
	if r.mode == ModeSessionActive {
		r.toMenu()
	}
	return err
}

// Delete removes a stored file unless it is the one being recorded.
func (r *Router) Delete(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if r.sessions.IsBusy(name) {
		err := errcode.New(errcode.FileBusy, "delete", name)
		fmt.Fprintf(r.out, "Cannot delete %s: %s\n", name, Describe(err))
		return err
	}
	if err := r.store.Remove(name); err != nil {
		fmt.Fprintf(r.out, "Cannot delete %s: %s\n", name, Describe(err))
		return err
	}
	fmt.Fprintf(r.out, "Deleted %s\n", name)
	return nil
}

func (r *Router) read(name string) {
	f, err := r.store.Open(name)
	if err != nil {
		fmt.Fprintf(r.out, "Cannot read %s: %s\n", name, Describe(err))
		return
	}
	defer f.Close()

	fmt.Fprintf(r.out, "--- %s ---\n", name)
	if _, err := io.Copy(r.out, f); err != nil {
		fmt.Fprintf(r.out, "\nRead interrupted: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "--- end of %s ---\n", name)
}

func (r *Router) list() {
	entries, err := r.store.List()
	if err != nil {
		fmt.Fprintf(r.out, "Cannot list storage: %s\n", Describe(err))
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "(no files)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(r.out, "  %-12s %8d bytes\n", e.Name, e.Size)
	}
}

func (r *Router) toMenu() {
	r.mode = ModeMenu
	r.PrintMenu()
}

func isBack(input string) bool {
	return strings.EqualFold(input, Back)
}

// Describe turns an error into the message shown to the operator.
func Describe(err error) string {
	switch errcode.Of(err) {
	case errcode.InvalidName:
		return "invalid name"
	case errcode.AlreadyActive:
		return "a recording is already in progress"
	case errcode.NotActive:
		return "no recording in progress"
	case errcode.StorageUnavailable:
		return "storage unavailable"
	case errcode.WriteFailure:
		return "write failure"
	case errcode.FileBusy:
		return "file is being recorded"
	case errcode.NotFound:
		return "file not found"
	case errcode.ReadFailure:
		return "read failure"
	default:
		return err.Error()
	}
}
