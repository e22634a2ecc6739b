package auth

const RoleAdmin = "admin"

// Claims representa la información extraída del token.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin habilita las rutas de operador sobre el espejo admin.
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
