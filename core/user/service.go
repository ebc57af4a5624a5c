package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/askuphq/askup/core"
)

var (
	// errors
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("a user with this username or email already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers); err != nil {
		if errors.Cause(err) == ErrUserExists {
			return core.NewValidationError(err,
				core.FieldError{Field: "username", Error: err.Error()},
				core.FieldError{Field: "email", Error: err.Error()},
			)
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
		if filter.IsEmpty() {
			filter = nil
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{uname, uname}})
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		IsActive:  uu.IsActive,
		Roles:     uu.Roles,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) error {
	usr.LastLogin = time.Now().UTC()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return err
}

// RequestPasswordReset emails a reset link to the account holder. Inactive
// and unknown accounts are reported via ErrNotFound; callers decide whether
// to expose that.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}

	token, err := MakeToken(usr, svc.conf)
	if err != nil {
		return errors.Wrap(err, "generating reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Username string
			UID      string
			Token    string
		}{usr.Username, EncodeUID(usr), token},
	})
	return nil
}

// ResetPassword sets a new password if the (uid, token) pair checks out.
func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	badToken := func(err error) error {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	id, err := decodeUID(rp.UID)
	if err != nil {
		return badToken(errInvalidToken)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return badToken(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(usr, rp.Token, svc.conf); err != nil {
		return badToken(err)
	}

	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Password Reset Successful",
		BodyStr: "Your password has been reset successfully.",
	})
	return nil
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}
