package providers

// NewGitHub creates the GitHub preset. GitHub has no OIDC discovery
// document; its userinfo equivalent is the user API, which identifies users
// by "login".
func NewGitHub(opts ...GenericOption) *Generic {
	g := NewGeneric(
		"https://github.com/login/oauth/authorize",
		"https://github.com/login/oauth/access_token",
		"https://api.github.com/user",
		opts...,
	)
	g.name = "github"
	g.subjectKeys = []string{"login", "id"}
	// GitHub errors on the offline_access parameters.
	g.offlineAccess = false
	return g
}
