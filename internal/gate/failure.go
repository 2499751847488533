package gate

import (
	"fmt"
	"strings"
)

// Failure is a terminal rejection of the current request.
type Failure struct {
	Kind     FailureKind
	Family   Family
	UserID   string
	Role     string
	Required []string
	Err      error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gate: %s rejected: %s", f.Family, f.Kind)
	if f.UserID != "" {
		fmt.Fprintf(&b, " user=%s", f.UserID)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Message is the flash text shown to the user.
func (f *Failure) Message() string {
	switch f.Kind {
	case Unauthenticated:
		return "Debes iniciar sesión para continuar."
	case ProviderError:
		return "No fue posible validar tu sesión. Inicia sesión nuevamente."
	case ProfileNotFound:
		return "No se encontró el perfil de usuario. Contacta al administrador."
	case ProfileInactive:
		return "Tu cuenta está desactivada. Contacta al administrador."
	case RoleMismatch:
		return "No tienes permisos para acceder a esta sección."
	case NoTenantAssigned:
		if f.Family == FamilyWorkshop {
			return "Tu usuario no tiene un taller asignado."
		}
		return "Tu usuario no tiene un cuartel asignado."
	case StorageError:
		return "Ocurrió un error al verificar tus permisos. Intenta nuevamente."
	default:
		return "Acceso denegado."
	}
}
