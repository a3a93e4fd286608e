package config

var jwtAlgorithms = []string{"HS256", "HS384", "HS512"}

// JWTConfig holds the settings used to verify user access tokens on the device API
type JWTConfig struct {
	Secret    string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Algorithm string `env:"JWT_ALGORITHM" env-default:"HS256"`
}

func (j JWTConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireMinLength("jwt.secret", j.Secret, 16),
		RequireOneOf("jwt.algorithm", j.Algorithm, jwtAlgorithms),
	)
}

// ServiceAuthConfig holds the key the identity provider signs its guard API
// tokens with. There is no default: the guard API mints remember-me tokens
// for any user id it is given.
type ServiceAuthConfig struct {
	Secret    string `env:"GUARD_API_SECRET"`
	Algorithm string `env:"GUARD_API_ALGORITHM" env-default:"HS256"`
}

func (s ServiceAuthConfig) validate(userSecret string) ValidationErrors {
	errs := CollectErrors(
		RequireMinLength("guard_api.secret", s.Secret, 32),
		RequireOneOf("guard_api.algorithm", s.Algorithm, jwtAlgorithms),
	)
	if s.Secret != "" && s.Secret == userSecret {
		errs = append(errs, ValidationError{Field: "guard_api.secret", Message: "must differ from jwt.secret"})
	}
	return errs
}
