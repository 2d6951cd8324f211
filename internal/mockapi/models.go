package mockapi

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CSRFResponse is returned from GET /api/auth/csrf.
type CSRFResponse struct {
	Token         string `json:"token"`
	HeaderName    string `json:"headerName"`
	ParameterName string `json:"parameterName"`
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

// RegisterResponse is returned from POST /api/auth/register. The code sits
// under data.
type RegisterResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    RegisterData `json:"data"`
}

// RegisterData is the payload of RegisterResponse.
type RegisterData struct {
	Email string `json:"email"`
	OTP   string `json:"otp,omitempty"`
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// LoginResponse is returned from POST /api/auth/login. Everything is top
// level, including a provisional token for the verification call.
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	OTP     string `json:"otp,omitempty"`
}

// EmailRequest is the JSON body for forget-password and resend-otp.
type EmailRequest struct {
	Email string `json:"email"`
}

// MessageResponse carries only a message.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResendResponse is returned from POST /api/auth/resend-otp.
type ResendResponse struct {
	Message string     `json:"message"`
	Data    ResendData `json:"data"`
}

// ResendData is the payload of ResendResponse.
type ResendData struct {
	VerificationCode string `json:"verificationCode,omitempty"`
}

// VerifyOTPRequest is the JSON body for POST /api/auth/verify-otp.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifySessionResponse is returned when a login or signup code is verified.
type VerifySessionResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    VerifySessionData `json:"data"`
}

// VerifySessionData is the payload of VerifySessionResponse.
type VerifySessionData struct {
	Token        string      `json:"token"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         UserProfile `json:"user"`
}

// VerifyResetResponse is returned when a password-reset code is verified.
type VerifyResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

// ResetPasswordRequest is the JSON body for POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RefreshResponse is returned from POST /api/auth/refresh-token. The new
// access token is the whole of data.
type RefreshResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       string `json:"data"`
}

// UserProfile describes an account.
type UserProfile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}
