package main

import (
	"context"

	"github.com/askuphq/askup/apps"
	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, uname}})
	if err != nil {
		if err == user.ErrNotFound {
			return apps.NewArgumentError("no user with this username or email")
		}
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
