package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
	inmemdb "github.com/askuphq/askup/storage/database/inmem"
)

var (
	usrRepo  user.Repository
	qsetRepo qset.Repository
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	usrRepo = inmemdb.NewUserRepository(db)
	qsetRepo = inmemdb.NewQsetRepository(db)

	// start CLI
	return &commandLine{
		usrRepo:  usrRepo,
		qsetRepo: qsetRepo,
	}
}

func createUser(t *testing.T, uname, email, pwd string) user.User {
	t.Helper()
	usr := user.User{Username: uname, Email: email}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	created, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return created
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create requires a NAME argument")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create requires a NAME argument"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to requires a VERSION argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "qset", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := createUser(t, "awe", "awe@test.cd", "mdr")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErrStr: "no user with this username or email"},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if tt.wantErrStr != "" {
				if err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("sekret"), nil }

	if err := cli.run([]string{"admin", "adduser", "-username", "boss", "-email", "boss@test.cd", "-admin"}); err != nil {
		t.Fatalf("cli.run(): %v", err)
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "boss"})
	if err != nil {
		t.Fatalf("GetUser(): %v", err)
	}
	if !usr.IsAdmin() {
		t.Error("expected an admin user")
	}
	if err = usr.CheckPassword("sekret"); err != nil {
		t.Errorf("CheckPassword(): %v", err)
	}

	t.Run("teacher flag grants teacher roles", func(t *testing.T) {
		if err := cli.run([]string{"admin", "adduser", "-username", "teachy", "-email", "teachy@test.cd", "-teacher"}); err != nil {
			t.Fatalf("cli.run(): %v", err)
		}
		teach, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "teachy"})
		if err != nil {
			t.Fatalf("GetUser(): %v", err)
		}
		if !teach.IsTeacher() {
			t.Error("expected a teacher user")
		}
		if teach.IsAdmin() {
			t.Error("unexpected admin roles")
		}
	})

	t.Run("existing user is updated", func(t *testing.T) {
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte("updated"), nil }
		if err := cli.run([]string{"admin", "adduser", "-username", "boss", "-email", "boss@test.cd"}); err != nil {
			t.Fatalf("cli.run(): %v", err)
		}
		refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "boss"})
		if err != nil {
			t.Fatalf("GetUser(): %v", err)
		}
		if refreshed.ID != usr.ID {
			t.Errorf("ID = %q, want %q", refreshed.ID, usr.ID)
		}
		if err = refreshed.CheckPassword("updated"); err != nil {
			t.Errorf("CheckPassword(): %v", err)
		}
	})
}

func Test_commandLine_addOrg(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	usr := createUser(t, "awe", "awe@test.cd", "mdr")

	if err := cli.run([]string{"admin", "addorg", "-name", "Acme School", "-member", usr.Email}); err != nil {
		t.Fatalf("cli.run(): %v", err)
	}

	orgs, err := qsetRepo.QueryOrganizations(ctx, usr.ID)
	if err != nil {
		t.Fatalf("QueryOrganizations(): %v", err)
	}
	if len(orgs) != 1 || orgs[0].Name != "Acme School" {
		t.Fatalf("QueryOrganizations() = %+v, want the new organization", orgs)
	}

	t.Run("duplicate name", func(t *testing.T) {
		if err := cli.run([]string{"admin", "addorg", "-name", "Acme School"}); err != qset.ErrDuplicateName {
			t.Errorf("cli.run() error = %v, want %v", err, qset.ErrDuplicateName)
		}
	})
}
