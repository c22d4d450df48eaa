package cli

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/services"
)

var errPasswordMismatch = fmt.Errorf("%w: passwords do not match", common.ErrValidation)

// Register prompts for account details and creates the account. It does
// not log in.
func (a *App) Register(ctx context.Context, _ []string) error {
	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.reader, "Enter email (optional)", a.out)
	if err != nil {
		return err
	}
	first, err := GetSimpleText(a.reader, "Enter first name", a.out)
	if err != nil {
		return err
	}
	last, err := GetSimpleText(a.reader, "Enter last name", a.out)
	if err != nil {
		return err
	}

	password, err := a.newPassword("Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.identity.Register(ctx, services.RegisterRequest{
		Username:  username,
		Password:  password,
		Email:     email,
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Account %s created, you can log in now\n", u.Username)
	return nil
}

// Login prompts for credentials, starts a session and restores the saved
// front-end state.
func (a *App) Login(ctx context.Context, args []string) error {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		var err error
		if username, err = GetSimpleText(a.reader, "Enter username", a.out); err != nil {
			return err
		}
	}

	password, err := GetPassword(a.reader, "Enter password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res, err := a.identity.Login(ctx, username, password)
	if err != nil {
		return err
	}
	a.restoreState(ctx)

	name := res.User.FirstName
	if name == "" {
		name = res.User.Username
	}
	fmt.Fprintf(a.out, "Welcome, %s! Session valid until %s\n", name, res.Session.ExpiresAt.Local().Format(time.DateTime))
	return nil
}

func (a *App) Logout(ctx context.Context, _ []string) error {
	a.identity.Logout(ctx)
	a.state = appState{}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Whoami(_ context.Context, _ []string) error {
	u, ok := a.identity.CurrentUser()
	if !ok {
		return common.ErrSessionExpired
	}

	fmt.Fprintf(a.out, "Username: %s\n", u.Username)
	if full := joinNonEmpty(" ", u.FirstName, u.LastName); full != "" {
		fmt.Fprintf(a.out, "Name:     %s\n", full)
	}
	if u.Email != nil {
		fmt.Fprintf(a.out, "Email:    %s\n", *u.Email)
	}
	fmt.Fprintf(a.out, "Role:     %s\n", u.Role)
	fmt.Fprintf(a.out, "Currency: %s\n", u.Preferences.Currency)
	if s, ok := a.identity.CurrentSession(); ok {
		fmt.Fprintf(a.out, "Session:  until %s\n", s.ExpiresAt.Local().Format(time.DateTime))
	}
	return nil
}

// Passwd changes the password of the current user.
func (a *App) Passwd(ctx context.Context, _ []string) error {
	current, err := GetPassword(a.reader, "Enter current password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	next, err := a.newPassword("Enter new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	if err := a.identity.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

// newPassword reads a password twice and checks both entries match.
func (a *App) newPassword(prompt string) ([]byte, error) {
	pw, err := GetPassword(a.reader, prompt, a.out)
	if err != nil {
		return nil, err
	}
	again, err := GetPassword(a.reader, "Repeat password", a.out)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, errPasswordMismatch
	}
	if len(pw) == 0 {
		return nil, fmt.Errorf("%w: password is required", common.ErrValidation)
	}
	return pw, nil
}
