package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dgrijalva/jwt-go"
	. "github.com/smartystreets/goconvey/convey"
)

func TestOperator(t *testing.T) {
	Convey("Methods work as expected", t, func() {
		operator := new(Operator)
		Convey("Setting and verify password works correctly with hashes", func() {
			operator.SetPassword([]byte("hello123"))
			So(operator.Password, ShouldStartWith, "$")

			So(operator.VerifyPassword([]byte("hello123")), ShouldBeNil)
			So(operator.VerifyPassword([]byte("hello12")), ShouldNotBeNil)
		})

		Convey("Invalid hash returns the correct error code", func() {
			operator.Password = "I DON'T WORK"
			So(operator.VerifyPassword([]byte("hello123")).Error(), ShouldContainSubstring, "hashedSecret too short")
		})
	})
}

func TestJWTGeneration(t *testing.T) {
	Convey("test basic claim creation", t, func() {
		ts, err := newJWT("hello test", false)
		So(ts, ShouldNotBeNil)
		So(err, ShouldBeNil)
	})

	Convey("the admin flag round trips through the token", t, func() {
		ts, err := newJWT("admin@test.case", true)
		So(err, ShouldBeNil)

		token, err := jwt.ParseWithClaims(ts, &OperatorClaims{},
			func(*jwt.Token) (interface{}, error) { return JWT_HMAC_SECRET, nil })
		So(err, ShouldBeNil)

		claims := token.Claims.(*OperatorClaims)
		So(claims.Subject, ShouldEqual, "admin@test.case")
		So(claims.Admin, ShouldBeTrue)
	})
}

func TestLogin(t *testing.T) {
	// setup the fake db
	os.Remove("./tmp/test.db")
	db, err := openDb("./tmp/test.db")
	if err != nil {
		panic(err)
	}
	ENV.DB = db

	operator := &Operator{
		Email: "login@test.case",
	}
	operator.SetPassword([]byte("testing123"))
	ENV.DB.Save(operator)

	Convey("Valid request works as expected", t, func() {
		lp := &LoginPayload{
			Email:    "login@test.case",
			Password: "testing123",
		}
		body, _ := json.Marshal(lp)

		req := httptest.NewRequest("POST", "/api/login/", bytes.NewBuffer(body))

		rr := httptest.NewRecorder()
		handler := http.HandlerFunc(Login)

		req.Header.Add("Content-Type", "application/json")
		handler.ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)
		So(rr.Body.String(), ShouldContainSubstring, `"token":`)
	})

	Convey("Invalid credentials return error", t, func() {
		Convey("Incorrect username provides 404", func() {
			lp := &LoginPayload{
				Email:    "login-no@test.case",
				Password: "testing123",
			}
			body, _ := json.Marshal(lp)

			req := httptest.NewRequest("POST", "/api/login/", bytes.NewBuffer(body))

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(Login)

			req.Header.Add("Content-Type", "application/json")
			handler.ServeHTTP(rr, req)

			So(rr.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Incorrect password provides 403", func() {
			lp := &LoginPayload{
				Email:    "login@test.case",
				Password: "testing12",
			}
			body, _ := json.Marshal(lp)

			req := httptest.NewRequest("POST", "/api/login/", bytes.NewBuffer(body))

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(Login)

			req.Header.Add("Content-Type", "application/json")
			handler.ServeHTTP(rr, req)

			So(rr.Code, ShouldEqual, http.StatusForbidden)
		})
	})
}
