package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/user"
	emailsvc "github.com/askuphq/askup/services/email"
	inmemdb "github.com/askuphq/askup/storage/database/inmem"
)

func setup(t *testing.T) (user.ServiceInterface, *core.Config) {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	conf := &core.Config{
		AppName:                   "AskUp",
		SecretKey:                 "secret",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	return user.NewService(nil, inmemdb.NewUserRepository(db), mailSvc, conf), conf
}

func createUser(t *testing.T, svc user.ServiceInterface, uname, email string) user.User {
	t.Helper()
	usr, err := svc.Create(context.Background(), user.NewUser{
		Name:     "Test User",
		Username: uname,
		Email:    email,
		Password: "V3ryS3cret",
		Roles:    user.StudentRoles,
	})
	if err != nil {
		t.Fatalf("Create(%q): %v", uname, err)
	}
	return usr
}

func Test_service_CheckUniqueness(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr := createUser(t, svc, "awesome", "awe@test.cd")

	tests := []struct {
		name     string
		uname    string
		email    string
		excluded []user.User
		wantErr  bool
	}{
		{name: "free username and email", uname: "other", email: "other@test.cd"},
		{name: "taken username", uname: usr.Username, email: "other@test.cd", wantErr: true},
		{name: "taken email", uname: "other", email: usr.Email, wantErr: true},
		{name: "taken but excluded", uname: usr.Username, email: usr.Email, excluded: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excluded...)
			var vErr *core.ValidationError
			if gotErr := errors.As(err, &vErr); gotErr != tt.wantErr {
				t.Errorf("CheckUniqueness() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_service_PasswordReset(t *testing.T) {
	svc, conf := setup(t)
	ctx := context.Background()

	usr := createUser(t, svc, "awesome", "awe@test.cd")

	t.Run("unknown email", func(t *testing.T) {
		if err := svc.RequestPasswordReset(ctx, "nope@test.cd"); errors.Cause(err) != user.ErrNotFound {
			t.Errorf("RequestPasswordReset() error = %v, want %v", err, user.ErrNotFound)
		}
	})

	t.Run("known email", func(t *testing.T) {
		if err := svc.RequestPasswordReset(ctx, usr.Email); err != nil {
			t.Errorf("RequestPasswordReset(): %v", err)
		}
	})

	token, err := user.MakeToken(usr, conf)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}
	uid := user.EncodeUID(usr)

	t.Run("garbage uid", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: "???", Token: token, Password: "NewP4ssword", PasswordConfirm: "NewP4ssword"})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("ResetPassword() error = %v, want a validation error", err)
		}
	})

	t.Run("valid reset", func(t *testing.T) {
		if err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "NewP4ssword", PasswordConfirm: "NewP4ssword"}); err != nil {
			t.Fatalf("ResetPassword(): %v", err)
		}
		refreshed, err := svc.GetByID(ctx, usr.ID)
		if err != nil {
			t.Fatalf("GetByID(): %v", err)
		}
		if err = refreshed.CheckPassword("NewP4ssword"); err != nil {
			t.Errorf("CheckPassword() after reset: %v", err)
		}
	})

	t.Run("token is single use", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "YetAnother1", PasswordConfirm: "YetAnother1"})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("ResetPassword() error = %v, want a validation error", err)
		}
	})
}

func Test_service_Update(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr := createUser(t, svc, "awesome", "awe@test.cd")

	updated, err := svc.Update(ctx, usr.ID, user.UpdateUser{Name: "Renamed"})
	if err != nil {
		t.Fatalf("Update(): %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("Name = %q, want %q", updated.Name, "Renamed")
	}
	if updated.Username != usr.Username {
		t.Errorf("Username = %q, want untouched %q", updated.Username, usr.Username)
	}
}
