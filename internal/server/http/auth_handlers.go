package httpapi

import (
	"net/http"
	"time"

	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/service"
)

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type signupResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokensResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Role         string    `json:"role"`
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	acc, err := a.accounts.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{
		ID:      acc.ID.String(),
		Email:   acc.Email,
		Name:    acc.Name,
		Message: "verification code sent, please verify your account within one minute",
	})
}

// otpParams reads email and otp from the query string, falling back to a
// JSON body.
func otpParams(w http.ResponseWriter, r *http.Request) (otpRequest, error) {
	req := otpRequest{Email: r.URL.Query().Get("email"), OTP: r.URL.Query().Get("otp")}
	if req.Email != "" {
		return req, nil
	}
	if err := decode(w, r, &req); err != nil {
		return otpRequest{}, err
	}
	if req.Email == "" {
		return otpRequest{}, errs.ErrInvalidArgument
	}
	return req, nil
}

func (a *api) verifyAccount(w http.ResponseWriter, r *http.Request) {
	req, err := otpParams(w, r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if err := a.accounts.VerifyAccount(r.Context(), req.Email, req.OTP); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "account verified, you can log in"})
}

func (a *api) regenerateOTP(w http.ResponseWriter, r *http.Request) {
	req, err := otpParams(w, r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if err := a.accounts.RegenerateOTP(r.Context(), req.Email); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "verification code sent, please verify your account within one minute"})
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	tk, err := a.sessions.Login(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokensResponse(tk))
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	tk, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokensResponse(tk))
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	raw, _ := bearerToken(r)
	if err := a.sessions.Logout(r.Context(), raw); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
