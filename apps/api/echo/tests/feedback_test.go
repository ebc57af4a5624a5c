package tests

import (
	"net/http"
	"net/mail"
	"testing"

	echoapi "github.com/askuphq/askup/apps/api/echo"
	"github.com/askuphq/askup/core/user"
	emailsvc "github.com/askuphq/askup/services/email"
)

func Test_feedbackApi_create(t *testing.T) {
	app := setup(t)

	student := createUser(t, "heroic", "heroic@test.cd", "LolC@t123", user.StudentRoles)
	boss1 := createUser(t, "bigboss", "bigboss@test.cd", "LolC@t123", user.AdminRoles)
	boss2 := createUser(t, "headmaster", "headmaster@test.cd", "LolC@t123", user.AdminRoles)

	tests := []httpTest{
		{
			name:     "anonymous",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "message is required",
			token:    getToken(t, student),
			body:     marchallObj(t, echoapi.FeedbackRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"message": "this field is required"}),
		},
		{
			name:     "feedback reaches every admin",
			token:    getToken(t, student),
			body:     marchallObj(t, echoapi.FeedbackRequest{Message: "the vote buttons overlap on mobile"}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Thank you for your feedback"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.SentMessages = nil // reset

			req, rec := newAuthRequest(http.MethodPost, "/v1/feedback", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode != http.StatusOK {
				if len(emailsvc.SentMessages) > 0 {
					t.Errorf("failed! len(SentMessages) = %d; want 0", len(emailsvc.SentMessages))
				}
				return
			}
			if len(emailsvc.SentMessages) != 1 {
				t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
			}
			msg := emailsvc.SentMessages[0]
			wantTo := map[mail.Address]bool{
				{Name: boss1.Name, Address: boss1.Email}: true,
				{Name: boss2.Name, Address: boss2.Email}: true,
			}
			if len(msg.To) != len(wantTo) {
				t.Fatalf("failed! len(To) = %d; want %d", len(msg.To), len(wantTo))
			}
			for _, to := range msg.To {
				if !wantTo[to] {
					t.Errorf("failed! unexpected recipient %v", to)
				}
			}
			wantReplyTo := mail.Address{Name: student.Name, Address: student.Email}
			if len(msg.ReplyTo) != 1 || msg.ReplyTo[0] != wantReplyTo {
				t.Errorf("failed! ReplyTo = %v; want %v", msg.ReplyTo, wantReplyTo)
			}
		})
	}
}
