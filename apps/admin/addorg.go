package main

import (
	"context"

	"github.com/askuphq/askup/apps"
	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
)

// addOrg creates an organization (a root qset), optionally adding a first
// member identified by username or email.
func (cli *commandLine) addOrg(name, member string) error {
	ctx := context.Background()
	name = core.CleanString(name)

	if err := cli.qsetRepo.CheckQsetNameUniqueness(ctx, name, "", nil); err != nil {
		return err
	}
	org, err := cli.qsetRepo.CreateQset(ctx, qset.Qset{
		Name: name,
		Kind: qset.KindSubsetsOnly,
	})
	if err != nil {
		return err
	}

	if member != "" {
		member = core.CleanString(member, true /* lower */)
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{member, member}})
		if err != nil {
			if err == user.ErrNotFound {
				return apps.NewArgumentError("member: no user with this username or email")
			}
			return err
		}
		return cli.qsetRepo.AddMember(ctx, org.ID, usr.ID)
	}
	return nil
}
