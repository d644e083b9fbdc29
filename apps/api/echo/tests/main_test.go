package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

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
}

// fixture holds the users and class subjects most tests need.
type fixture struct {
	app *testutil.App

	admin, teacher, otherTeacher, student, otherStudent, inactive user.User
	maths, physics, closed                                         course.ClassSubject
}

func setup(t *testing.T) *fixture {
	app := testutil.NewApp(t)
	fx := &fixture{app: app}

	fx.admin = testutil.CreateUser(t, app.UsrRepo, "Admin", "a01", "admin@test.cd", "secret", user.RoleAdmin, true)
	fx.teacher = testutil.CreateUser(t, app.UsrRepo, "Teacher", "t01", "t01@test.cd", "", user.RoleTeacher, true)
	fx.otherTeacher = testutil.CreateUser(t, app.UsrRepo, "Other Teacher", "t02", "t02@test.cd", "", user.RoleTeacher, true)
	fx.student = testutil.CreateUser(t, app.UsrRepo, "Student", "s01", "s01@test.cd", "", user.RoleStudent, true)
	fx.otherStudent = testutil.CreateUser(t, app.UsrRepo, "Other Student", "s02", "s02@test.cd", "", user.RoleStudent, true)
	fx.inactive = testutil.CreateUser(t, app.UsrRepo, "Gone", "s03", "s03@test.cd", "", user.RoleStudent, false)

	fx.maths = testutil.CreateClassSubject(t, app.CSRepo, "6A", "Maths", fx.teacher.ID, 2020, 1, course.StatusActive)
	fx.physics = testutil.CreateClassSubject(t, app.CSRepo, "6A", "Physics", fx.otherTeacher.ID, 2020, 1, course.StatusActive)
	fx.closed = testutil.CreateClassSubject(t, app.CSRepo, "6A", "History", fx.teacher.ID, 2020, 1, course.StatusClosed)
	return fx
}

func (fx *fixture) token(t *testing.T, usr user.User) string {
	return fx.app.Token(t, usr)
}

func (fx *fixture) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	fx.app.Server.ServeHTTP(rec, req)
	return rec
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

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	return marchallObj(t, map[string]interface{}{"results": objs})
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}
