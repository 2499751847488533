package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveProfile indicates a deactivated account tried to sign in.
	ErrInactiveProfile = errors.New("profile inactive")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage converts an error into text that can be shown to end users.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe interface{ UserMessage() string }
	if errors.As(err, &safe) {
		return safe.UserMessage()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "El registro solicitado no existe."
	case errors.Is(err, ErrInvalidCredentials):
		return "Correo o contraseña incorrectos."
	case errors.Is(err, ErrInactiveProfile):
		return "Tu cuenta está desactivada. Contacta al administrador."
	default:
		return "Ocurrió un error inesperado. Intenta nuevamente."
	}
}
