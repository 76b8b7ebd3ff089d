package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vayureader/vayu-cli/internal/adapters/gateway"
	"github.com/vayureader/vayu-cli/internal/domain"
)

const (
	DefaultRequestOTPPath = "/api/auth/login/request-otp"
	DefaultVerifyOTPPath  = "/api/auth/login/verify-otp"
)

var ErrOTPRequest = errors.New("otp request failed")

// Requester is satisfied by *gateway.Gateway.
type Requester interface {
	DoJSON(ctx context.Context, method string, path string, body any, out any) error
}

// OTPFlowAdapter drives the phone-number login: request a one-time code,
// then exchange it for a bearer token. Calls go through the auth service
// gateway, which leaves login endpoints without a bearer header.
type OTPFlowAdapter struct {
	Gateway        Requester
	RequestOTPPath string
	VerifyOTPPath  string
	RequestTimeout time.Duration
}

type VerifyResult struct {
	Token string
	User  *domain.User
}

type requestOTPBody struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type verifyOTPBody struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

type verifyOTPResponse struct {
	Data struct {
		Token string       `json:"token"`
		User  *domain.User `json:"user"`
	} `json:"data"`
}

func (a OTPFlowAdapter) RequestOTP(ctx context.Context, name string, phoneNumber string) error {
	name = strings.TrimSpace(name)
	phoneNumber = strings.TrimSpace(phoneNumber)
	if name == "" {
		return errors.New("name is required")
	}
	if phoneNumber == "" {
		return errors.New("phone number is required")
	}
	if a.Gateway == nil {
		return errors.New("auth service is not configured")
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	err := a.Gateway.DoJSON(ctx, http.MethodPost, a.requestPath(), requestOTPBody{Name: name, PhoneNumber: phoneNumber}, nil)
	if err != nil {
		return otpError("request otp", ErrOTPRequest, err)
	}
	return nil
}

func (a OTPFlowAdapter) VerifyOTP(ctx context.Context, phoneNumber string, otp string) (VerifyResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	otp = strings.TrimSpace(otp)
	if phoneNumber == "" {
		return VerifyResult{}, errors.New("phone number is required")
	}
	if otp == "" {
		return VerifyResult{}, errors.New("otp is required")
	}
	if a.Gateway == nil {
		return VerifyResult{}, errors.New("auth service is not configured")
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	var payload verifyOTPResponse
	err := a.Gateway.DoJSON(ctx, http.MethodPost, a.verifyPath(), verifyOTPBody{PhoneNumber: phoneNumber, OTP: otp}, &payload)
	if err != nil {
		return VerifyResult{}, otpError("verify otp", domain.ErrOTPVerification, err)
	}
	if strings.TrimSpace(payload.Data.Token) == "" {
		return VerifyResult{}, fmt.Errorf("verify otp: %w: response missing token", domain.ErrOTPVerification)
	}

	return VerifyResult{Token: payload.Data.Token, User: payload.Data.User}, nil
}

// otpError tags a rejected call with sentinel and the server's message.
// Transport and decode failures keep their own cause.
func otpError(op string, sentinel error, err error) error {
	var statusErr *gateway.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	message := statusErr.Message
	if message == "" {
		message = fmt.Sprintf("status %d", statusErr.StatusCode)
	}
	return fmt.Errorf("%s: %w: %s", op, sentinel, message)
}

func (a OTPFlowAdapter) requestPath() string {
	if a.RequestOTPPath != "" {
		return a.RequestOTPPath
	}
	return DefaultRequestOTPPath
}

func (a OTPFlowAdapter) verifyPath() string {
	if a.VerifyOTPPath != "" {
		return a.VerifyOTPPath
	}
	return DefaultVerifyOTPPath
}

func (a OTPFlowAdapter) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := a.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}
