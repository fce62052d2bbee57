package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/upstars/corporate-discounts/internal/bootstrap"
	"github.com/upstars/corporate-discounts/internal/client"
)

// withSession restores the stored session, runs f and persists provider state.
func withSession(cmdCtx *commandContext, f func(*bootstrap.ClientSession) error) (err error) {
	sess, err := bootstrap.NewClientSession(cmdCtx.Ctx, cmdCtx.Config.Client, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.Close())
	}()

	if _, err := sess.Manager.Restore(cmdCtx.Ctx); err != nil {
		cmdCtx.Logger.WarnContext(cmdCtx.Ctx, "stored session unreadable", "error", err)
	}
	return f(sess)
}

func runLogin(cmdCtx *commandContext, _ []string) error {
	return withSession(cmdCtx, func(sess *bootstrap.ClientSession) error {
		resp, err := sess.SignIn(cmdCtx.Ctx, cmdCtx.Out)
		if err != nil {
			return err
		}
		s, _ := sess.Manager.Session()
		return writef(cmdCtx.Out, "signed in as %s <%s> (%s); session expires %s\n",
			resp.User.Name, resp.User.Email, resp.User.Role, s.ExpiresAt.Local().Format(time.RFC1123))
	})
}

func runWhoami(cmdCtx *commandContext, _ []string) error {
	return withSession(cmdCtx, func(sess *bootstrap.ClientSession) error {
		s, ok := sess.Manager.Session()
		if !ok {
			if last, known := sess.Manager.LastUser(); known {
				return writef(cmdCtx.Out, "not signed in (last signed in as %s <%s>)\n", last.Name, last.Email)
			}
			return writeln(cmdCtx.Out, "not signed in")
		}

		v, err := sess.Public.Verify(cmdCtx.Ctx, s.Token)
		if err != nil {
			if client.IsStatus(err, http.StatusUnauthorized) {
				return writeln(cmdCtx.Out, "stored session was rejected by the API; run login")
			}
			return err
		}
		return writef(cmdCtx.Out, "%s <%s>\nrole:    %s\nexpires: %s (%s)\n",
			v.Name, v.Email, v.Role,
			s.ExpiresAt.Local().Format(time.RFC1123),
			time.Until(s.ExpiresAt).Round(time.Second))
	})
}

func runLoadConfig(cmdCtx *commandContext, _ []string) error {
	return withSession(cmdCtx, func(sess *bootstrap.ClientSession) error {
		doc, err := sess.Public.LoadConfig(cmdCtx.Ctx)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, doc, "", "  "); err != nil {
			return fmt.Errorf("format document: %w", err)
		}
		return writeln(cmdCtx.Out, buf.String())
	})
}

func runSaveConfig(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: save-config <file>")
	}
	body, err := readDocument(args[0])
	if err != nil {
		return err
	}

	return withSession(cmdCtx, func(sess *bootstrap.ClientSession) error {
		resp, err := sess.Authed.SaveConfig(cmdCtx.Ctx, body)
		if errors.Is(err, client.ErrAuthenticationRequired) {
			return fmt.Errorf("%w: run login first", err)
		}
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "%s at %s\n", resp.Message, resp.Timestamp.Local().Format(time.RFC1123))
	})
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	return withSession(cmdCtx, func(sess *bootstrap.ClientSession) error {
		if err := sess.SignOut(cmdCtx.Ctx); err != nil {
			return err
		}
		return writeln(cmdCtx.Out, "signed out")
	})
}

// readDocument loads path and checks it holds a JSON object.
func readDocument(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%s is not a JSON object: %w", path, err)
	}
	return body, nil
}
