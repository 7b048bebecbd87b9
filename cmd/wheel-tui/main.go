package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/ichi0g0y/spinwheel/internal/identity"
)

type options struct {
	server string
	token  string
	target string
	// 開発用: secretを渡すとその場でトークンを発行する
	secret string
	user   string
	name   string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("wheel-tui", flag.ContinueOnError)
	fs.StringVar(&o.server, "server", "http://localhost:8080", "spinwheel server URL")
	fs.StringVar(&o.token, "token", os.Getenv("SPINWHEEL_TOKEN"), "identity token used to sign in")
	fs.StringVar(&o.target, "target", "", "segment id to land on (empty for a free spin)")
	fs.StringVar(&o.secret, "secret", "", "JWT secret to issue a local token with (development only)")
	fs.StringVar(&o.user, "user", "", "user id for -secret")
	fs.StringVar(&o.name, "name", "", "display name for -secret")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.secret != "" && o.user == "" {
		return o, fmt.Errorf("-user is required with -secret")
	}
	return o, nil
}

// resolveToken returns the token to sign in with, issuing one when a secret
// was given.
func (o options) resolveToken() (string, error) {
	if o.token != "" || o.secret == "" {
		return o.token, nil
	}
	verifier := identity.NewTokenVerifier(o.secret, "")
	return verifier.Issue(identity.User{ID: o.user, DisplayName: o.name}, time.Hour)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "wheel-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newWheelClient(opts.server)
	if err != nil {
		return err
	}

	token, err := opts.resolveToken()
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	if token != "" {
		if err := client.signIn(ctx, token); err != nil {
			return err
		}
	}

	if err := client.connect(ctx); err != nil {
		return err
	}
	defer client.close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	messages := make(chan wsMessage, 256)
	readErr := make(chan error, 1)
	go func() {
		readErr <- client.readLoop(messages)
	}()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	view := &wheelView{}
	redraw := func() {
		w, h := screen.Size()
		view.draw(screen, w, h)
		screen.Show()
	}
	redraw()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("connection closed: %v", <-readErr)
			}
			if view.apply(msg) {
				redraw()
			}

		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				screen.Sync()
				redraw()
			case *tcell.EventKey:
				quit, err := handleKey(client, ev, opts.target)
				if quit {
					return nil
				}
				if err != nil {
					view.lastError = err.Error()
					redraw()
				}
			}
		}
	}
}

func handleKey(client *wheelClient, ev *tcell.EventKey, target string) (quit bool, err error) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true, nil
	case tcell.KeyLeft:
		return false, client.nudge("left")
	case tcell.KeyRight:
		return false, client.nudge("right")
	case tcell.KeyEnter:
		return false, client.spin(target)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true, nil
		case ' ':
			return false, client.spin(target)
		case 'r':
			return false, client.sync()
		}
	}
	return false, nil
}
