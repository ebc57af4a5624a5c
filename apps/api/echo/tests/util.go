package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/askuphq/askup/apps/api/echo"
	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
	emailsvc "github.com/askuphq/askup/services/email"
	logsvc "github.com/askuphq/askup/services/logger"
	inmemdb "github.com/askuphq/askup/storage/database/inmem"
)

var (
	conf     *core.Config
	usrRepo  user.Repository
	qsetRepo qset.Repository
	usrSvc   user.ServiceInterface
	qsetSvc  qset.ServiceInterface

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func setup(t *testing.T) Server {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	usrRepo = inmemdb.NewUserRepository(db)
	qsetRepo = inmemdb.NewQsetRepository(db)

	conf = &core.Config{
		TestMode:  true,
		AppName:   "AskUp",
		SecretKey: "secret",
		WorkDir:   core.Getwd(),
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)

	core.ParseEmailTemplates(conf, logger)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc = user.NewService(nil, usrRepo, mailSvc, conf)
	qsetSvc = qset.NewService(qsetRepo)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	qset.InitValidators(validate, translator)

	// set up server
	return NewServer(
		ServerDeps{
			Conf:       conf,
			Logger:     logger,
			MailSvc:    mailSvc,
			UserSvc:    usrSvc,
			QsetSvc:    qsetSvc,
			Validate:   validate,
			Translator: translator,
		},
	)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func createUser(t *testing.T, uname, email, pwd string, roles []string) user.User {
	t.Helper()
	usr, err := usrSvc.Create(context.Background(), user.NewUser{
		Name:     uname,
		Username: uname,
		Email:    email,
		Password: pwd,
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("Create(%q): %v", uname, err)
	}
	return usr
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
